package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/user"
)

var errWeakPassword = errors.New("password does not comply with the password policy")

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if tag := user.PasswordPolicyViolation(pwd, usr.Name, usr.Username, usr.Email); tag != "" {
		return core.NewValidationError(errWeakPassword, core.FieldError{Field: "password", Error: tag})
	}
	if err = cli.usrSvc.SetPassword(ctx, usr.Username, pwd); err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("password of %q reset", usr.Username))
	return nil
}
