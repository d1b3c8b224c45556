package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vocdoni/anonpoll/circuits"
	"github.com/vocdoni/anonpoll/circuits/membership"
	"github.com/vocdoni/anonpoll/config"
	"github.com/vocdoni/anonpoll/crypto/blindrsa"
	"github.com/vocdoni/anonpoll/eligibility"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/service"
	"github.com/vocdoni/anonpoll/storage"
	"github.com/vocdoni/anonpoll/util"
	"github.com/vocdoni/anonpoll/voting"
	"go.vocdoni.io/dvote/db/metadb"
	"golang.org/x/sync/errgroup"
)

// envInt and envDuration read ANONPOLL_<name>, falling back to def when it
// is unset or malformed.
func envInt(name string, def int) int {
	v, err := strconv.Atoi(config.Env(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(name string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(config.Env(name, def.String()))
	if err != nil {
		return def
	}
	return v
}

func main() {
	defaultDataDir := config.Env("DATADIR", config.DefaultDataDir())
	host := flag.String("listenHost", config.Env("LISTEN_HOST", config.DefaultListenHost), "API listen host")
	port := flag.Int("listenPort", envInt("LISTEN_PORT", config.DefaultListenPort), "API listen port")
	dataDir := flag.String("datadir", defaultDataDir, "data directory")
	dbType := flag.String("dbType", config.Env("DB_TYPE", config.DefaultDBType), "database type (pebble, leveldb)")
	logLevel := flag.String("logLevel", config.Env("LOG_LEVEL", config.DefaultLogLevel), "log level (debug, info, warn, error)")
	logOutput := flag.String("logOutput", config.Env("LOG_OUTPUT", config.DefaultLogOutput), "log output (stdout, stderr or a file path)")
	blindKey := flag.String("blindKey", config.Env("BLIND_KEY", filepath.Join(defaultDataDir, "blind.pem")),
		"PEM file of the blind signature private key, generated if missing")
	eligibilityFile := flag.String("eligibility", config.Env("ELIGIBILITY", ""), "JSON file mapping role ids to user ids")
	admins := flag.String("admins", config.Env("ADMINS", ""), "comma separated list of admin user ids")
	verifyWorkers := flag.Int("verifyWorkers", envInt("VERIFY_WORKERS", config.DefaultVerifyWorkers), "deferred proof verification workers")
	verifyTimeout := flag.Duration("verifyTimeout", envDuration("VERIFY_TIMEOUT", config.DefaultVerifyTimeout),
		"timeout of a single deferred proof verification")
	schedulerInterval := flag.Duration("schedulerInterval", envDuration("SCHEDULER_INTERVAL", config.DefaultSchedulerInterval),
		"interval between checks for expired polls")
	flag.Parse()

	log.Init(*logLevel, *logOutput, nil)
	if err := os.MkdirAll(*dataDir, 0o750); err != nil {
		log.Fatalf("cannot create data directory: %v", err)
	}

	// blind key and circuit keys are loaded concurrently
	var (
		signer    *blindrsa.Suite
		keys      *membership.Keys
		artifacts *circuits.CircuitArtifacts
	)
	var g errgroup.Group
	g.Go(func() error {
		sk, err := blindrsa.LoadOrGenerateKey(*blindKey, blindrsa.DefaultKeyBits)
		if err != nil {
			return fmt.Errorf("blind signature key: %w", err)
		}
		signer, err = blindrsa.NewSigner(sk)
		return err
	})
	g.Go(func() error {
		var err error
		keys, artifacts, err = membership.LoadOrSetup()
		if err != nil {
			return fmt.Errorf("membership circuit: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	elig := eligibility.NewStatic(nil)
	if *eligibilityFile != "" {
		var err error
		if elig, err = eligibility.LoadStatic(*eligibilityFile); err != nil {
			log.Fatal(err)
		}
		log.Infow("eligibility loaded", "roles", elig.Roles())
	}

	database, err := metadb.New(*dbType, filepath.Join(*dataDir, "db"))
	if err != nil {
		log.Fatalf("cannot open database: %v", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	svc, err := voting.New(voting.Config{
		Storage:     stg,
		Eligibility: elig,
		Signer:      signer,
		Verifier:    keys,
		Admins:      util.SplitList(*admins),
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vp := service.NewVoteProcessor(stg, keys, *verifyWorkers, *verifyTimeout)
	if err := vp.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer vp.Stop()

	scheduler := service.NewPollScheduler(svc, *schedulerInterval)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer scheduler.Stop()

	apiSrv := service.NewAPI(svc, artifacts, *host, *port)
	if err := apiSrv.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer apiSrv.Stop()

	h, p := apiSrv.HostPort()
	log.Infow("anonpoll ready", "host", h, "port", p, "datadir", *dataDir, "admins", util.SplitList(*admins))
	<-ctx.Done()
	log.Info("shutting down")
}
