package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/rtemis/reimbursement/apps/api/echo"
	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/claim"
	"github.com/rtemis/reimbursement/core/fee"
	"github.com/rtemis/reimbursement/core/user"
	emailsvc "github.com/rtemis/reimbursement/services/email"
	exportsvc "github.com/rtemis/reimbursement/services/export"
	logsvc "github.com/rtemis/reimbursement/services/logger"
	"github.com/rtemis/reimbursement/storage/cache"
	"github.com/rtemis/reimbursement/storage/database"
	"github.com/rtemis/reimbursement/storage/database/inmem"
	sqlxrepos "github.com/rtemis/reimbursement/storage/database/sqlx"
)

const inmemEngine = "inmem"

type repositories struct {
	users   user.Repository
	schools fee.Repository
	claims  claim.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Wait()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx := context.Background()

	// set up DB
	repos, closeDB, err := setUpStorage(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up report cache
	var reportCache fee.ReportCache
	if conf.Redis.CacheEnabled() {
		rdb, err := cache.Connect(ctx, conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()
		reportCache = cache.NewRedisCache(rdb, conf.Redis.TTL, logger)
	} else {
		reportCache = cache.NewMemoryCache(conf.Redis.TTL)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	exporter := exportsvc.NewXLSXExporter()
	usrSvc := user.NewService(repos.users, validate)
	feeSvc := fee.NewService(repos.schools, reportCache, logger, conf)
	claimSvc := claim.NewService(claim.Deps{
		Repo:     repos.claims,
		Reports:  feeSvc,
		Contacts: usrSvc,
		MailSvc:  mailSvc,
		Exporter: exporter,
		Logger:   logger,
		Validate: validate,
		Settings: conf.Reimbursement,
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("approvalLevel").Set(conf.Reimbursement.ApprovalLevel)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			FeeSvc:     feeSvc,
			ClaimSvc:   claimSvc,
			Exporter:   exporter,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStorage opens the configured database engine. The inmem engine keeps everything in memory
// and is meant for local demos.
func setUpStorage(ctx context.Context, conf *core.Config) (repositories, func() error, error) {
	if conf.Database.Engine == inmemEngine {
		db := inmemdb.Open()
		return repositories{
			users:   inmemdb.NewUserRepository(db),
			schools: inmemdb.NewSchoolRepository(db),
			claims:  inmemdb.NewClaimRepository(db),
		}, func() error { return nil }, nil
	}

	db, err := setUpDB(ctx, conf)
	if err != nil {
		return repositories{}, nil, err
	}
	return repositories{
		users:   sqlxrepos.NewUserRepository(db),
		schools: sqlxrepos.NewSchoolRepository(db),
		claims:  sqlxrepos.NewClaimRepository(db),
	}, db.Close, nil
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
