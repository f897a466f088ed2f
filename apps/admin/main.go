package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/user"
	logsvc "github.com/rtemis/reimbursement/services/logger"
	"github.com/rtemis/reimbursement/storage/database"
	sqlxrepos "github.com/rtemis/reimbursement/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("setting up database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:         db,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db), validate),
		schoolRepo: sqlxrepos.NewSchoolRepository(db),
		validate:   validate,
		school:     conf.School,
		logger:     logger,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil && err != errHelp {
		logger.Error("command failed: "+err.Error(), err)
	}
	logger.Wait()
	if err != nil {
		os.Exit(1)
	}
}
