package welldynecli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/maleexcel/welldyne-app/conf"
	"github.com/maleexcel/welldyne-app/log"
	"github.com/maleexcel/welldyne-app/welldyne/classifier"
	"github.com/maleexcel/welldyne-app/welldyne/client"
	"github.com/maleexcel/welldyne-app/welldyne/crm"
	"github.com/maleexcel/welldyne-app/welldyne/database"
	"github.com/maleexcel/welldyne-app/welldyne/exceptions"
	"github.com/maleexcel/welldyne-app/welldyne/feedback"
	"github.com/maleexcel/welldyne-app/welldyne/notify"
	"github.com/maleexcel/welldyne-app/welldyne/outbound"
	"github.com/maleexcel/welldyne-app/welldyne/repository/postgres"
	"github.com/maleexcel/welldyne-app/welldyne/sweep"
	"github.com/maleexcel/welldyne-app/welldyne/transfer"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "welldyne"
const Usage = "WellDyneRx trigger/eligibility reconciliation CLI"

type transferConfig struct {
	S3Bucket       string `conf:"WELLDYNE_S3_BUCKET"`
	S3Endpoint     string `conf:"WELLDYNE_S3_ENDPOINT"`
	AssumeRoleArn  string `conf:"WELLDYNE_ASSUME_ROLE_ARN"`
	LocalRoot      string `conf:"WELLDYNE_LOCAL_TRANSFER_ROOT"`
	TempDir        string `conf:"WELLDYNE_TEMP_DIR" conf_default:"/tmp"`
	OutboundFolder string `conf:"WELLDYNE_OUTBOUND_FOLDER" conf_default:"toWellDyne"`
	InboundFolder  string `conf:"WELLDYNE_INBOUND_FOLDER" conf_default:"fromWellDyne"`
	GroupID        string `conf:"WELLDYNE_GROUP_ID" conf_default:"MALEEXCEL"`
	Template       string `conf:"WELLDYNE_TEMPLATE" conf_default:"RWTMEXCEL"`
}

// deps is the shared wiring built once per command invocation.
type deps struct {
	db       *sql.DB
	repo     *postgres.Repository
	handler  transfer.FileHandler
	mailer   notify.Mailer
	xferCfg  transferConfig
	partners *client.HTTPClient
}

func buildDeps() (*deps, error) {
	var xferCfg transferConfig
	if err := conf.Checkout(&xferCfg); err != nil {
		return nil, err
	}

	mailCfg, err := notify.LoadConfig()
	if err != nil {
		return nil, err
	}

	partnerCfg, err := client.LoadConfig()
	if err != nil {
		return nil, err
	}

	var handler transfer.FileHandler
	if xferCfg.S3Bucket != "" {
		handler = &transfer.S3FileHandler{
			Logger:        log.Worker,
			Bucket:        xferCfg.S3Bucket,
			Endpoint:      xferCfg.S3Endpoint,
			AssumeRoleArn: xferCfg.AssumeRoleArn,
			TempDir:       xferCfg.TempDir,
		}
	} else {
		handler = &transfer.LocalFileHandler{
			Logger:  log.Worker,
			Root:    xferCfg.LocalRoot,
			TempDir: xferCfg.TempDir,
		}
	}

	db := database.GetDbConnection()
	return &deps{
		db:       db,
		repo:     postgres.NewRepository(db),
		handler:  handler,
		mailer:   notify.NewSESMailer(*mailCfg),
		xferCfg:  xferCfg,
		partners: client.NewHTTPClient(*partnerCfg),
	}, nil
}

func (d *deps) close() {
	_ = d.db.Close()
}

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage

	var period, report, slot, fileTime, memoUser, startDate, endDate string
	var recordID, triggerID uint

	app.Commands = []cli.Command{
		{
			Name:     "run-triggers",
			Category: "Scheduled jobs",
			Usage:    "Sweep CRM transactions for a period, classify, and upload the trigger file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "period",
					Usage:       "CRM query window: morning or noon",
					Destination: &period,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				crmCfg, err := crm.LoadConfig()
				if err != nil {
					return err
				}
				querier := crm.NewClient(*crmCfg, log.Trigger)
				cls := classifier.New(d.repo, d.partners, log.Trigger)
				job := sweep.NewTriggerSweep(d.repo, querier, cls, d.handler,
					d.mailer, log.Trigger, d.xferCfg.OutboundFolder)
				return job.Run(context.Background(), period)
			},
		},
		{
			Name:     "generate-eligibility",
			Category: "Scheduled jobs",
			Usage:    "Render and upload the full eligibility snapshot",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "file-time",
					Usage:       "hhmmss suffix stamped on the outbound filename",
					Value:       "043000",
					Destination: &fileTime,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				builder := outbound.NewEligibilityFileBuilder(d.repo, d.partners,
					log.Eligibility, d.xferCfg.GroupID, d.xferCfg.Template)
				job := sweep.NewEligibilitySweep(d.repo, builder, d.handler,
					d.mailer, log.Eligibility, d.xferCfg.OutboundFolder)
				return job.Run(context.Background(), fileTime)
			},
		},
		{
			Name:     "import-feedback",
			Category: "Scheduled jobs",
			Usage:    "Download and reconcile a WellDyne feedback report",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "report",
					Usage:       "Report type: opened, outbound, or shipped",
					Destination: &report,
				},
				cli.StringFlag{
					Name:        "time",
					Usage:       "Delivery slot: morning or afternoon",
					Value:       feedback.SlotMorning,
					Destination: &slot,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				importer := feedback.NewImporter(d.repo, d.handler, d.partners,
					d.mailer, log.Feedback, d.xferCfg.InboundFolder)
				return importer.Run(context.Background(), feedback.Report(report), slot)
			},
		},
		{
			Name:     "mark-outbound-ready",
			Category: "Exception queues",
			Usage:    "Flag an outbound failure as resolvable for resend",
			Flags: []cli.Flag{
				cli.UintFlag{
					Name:        "id",
					Usage:       "Outbound record id",
					Destination: &recordID,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				svc := exceptions.NewService(d.repo, d.mailer, log.Worker)
				return svc.MarkOutboundReady(context.Background(), recordID)
			},
		},
		{
			Name:     "resend-outbound",
			Category: "Exception queues",
			Usage:    "Re-queue a ready outbound failure as an adhoc trigger",
			Flags: []cli.Flag{
				cli.UintFlag{
					Name:        "id",
					Usage:       "Outbound record id",
					Destination: &recordID,
				},
				cli.StringFlag{
					Name:        "memo-user",
					Usage:       "Operator requesting the resend",
					Destination: &memoUser,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				svc := exceptions.NewService(d.repo, d.mailer, log.Worker)
				return svc.ResendOutbound(context.Background(), recordID, memoUser)
			},
		},
		{
			Name:     "create-adhoc",
			Category: "Exception queues",
			Usage:    "Queue an existing trigger for adhoc resend",
			Flags: []cli.Flag{
				cli.UintFlag{
					Name:        "trigger-id",
					Usage:       "Trigger record id",
					Destination: &triggerID,
				},
				cli.StringFlag{
					Name:        "memo-user",
					Usage:       "Operator requesting the adhoc",
					Destination: &memoUser,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				svc := exceptions.NewService(d.repo, d.mailer, log.Worker)
				return svc.CreateAdHoc(context.Background(), triggerID, "manual", memoUser)
			},
		},
		{
			Name:     "reclassify-triggers",
			Category: "Historical tools",
			Usage:    "Re-run classification over a historical CRM date range",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "start",
					Usage:       "Range start (MM/DD/YYYY)",
					Destination: &startDate,
				},
				cli.StringFlag{
					Name:        "end",
					Usage:       "Range end (MM/DD/YYYY)",
					Destination: &endDate,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := buildDeps()
				if err != nil {
					return err
				}
				defer d.close()

				start, err := time.Parse("01/02/2006", startDate)
				if err != nil {
					return errors.Wrap(err, "invalid start date")
				}
				end, err := time.Parse("01/02/2006", endDate)
				if err != nil {
					return errors.Wrap(err, "invalid end date")
				}

				crmCfg, err := crm.LoadConfig()
				if err != nil {
					return err
				}
				return reclassifyRange(context.Background(), d, crm.NewClient(*crmCfg, log.Trigger), start, end)
			},
		},
		{
			Name:     "migrate",
			Category: "Database tools",
			Usage:    "Apply pending schema migrations",
			Action: func(c *cli.Context) error {
				dbCfg, err := database.LoadConfig()
				if err != nil {
					return err
				}

				migrationsDir := conf.GetEnv("WELLDYNE_MIGRATIONS_DIR")
				if migrationsDir == "" {
					migrationsDir = "db/migrations"
				}

				m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), dbCfg.DatabaseURL)
				if err != nil {
					return err
				}
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return err
				}
				fmt.Println("Migrations applied.")
				return nil
			},
		},
	}

	return app
}

// reclassifyRange replays history page by page. Unlike the steady-state
// sweep, transient CRM failures here retry forever with a fixed backoff; the
// range is bounded and the tool is run attended.
func reclassifyRange(ctx context.Context, d *deps, querier *crm.Client, start, end time.Time) error {
	cls := classifier.New(d.repo, d.partners, log.Trigger)

	total := 0
	for page := 1; ; page++ {
		result, err := querier.QueryTransactionsRetry(ctx, start, end, page)
		if err != nil {
			return err
		}
		for _, txn := range result.Data {
			if _, err := cls.Classify(ctx, sweep.EventFromTransaction(txn)); err != nil {
				log.Trigger.Errorf("Could not reclassify order %s for customer %s: %s", txn.OrderID, txn.CustomerID, err)
			}
		}
		total += len(result.Data)
		if len(result.Data) == 0 || total >= result.TotalResults {
			log.Trigger.Infof("Reclassified %d transactions", total)
			return nil
		}
	}
}
