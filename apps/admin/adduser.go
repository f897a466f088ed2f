package main

import (
	"context"
	"fmt"

	"github.com/rtemis/reimbursement/core/user"
)

// addUser creates an active user.User after applying the same validation as the API.
func (cli *commandLine) addUser(uname, name, email string, roles []string, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if err := cli.usrSvc.Validate(ctx, &nu); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("user %q created with roles %v", usr.Username, usr.Roles))
	return nil
}
