package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"healx.io/healx/common/logging"
	rt "healx.io/healx/common/retry"
	cst "healx.io/healx/constants"
	se "healx.io/healx/errors"
	"healx.io/healx/gate"
	"healx.io/healx/payload"
	st "healx.io/healx/stores"
	"healx.io/healx/stores/session"
)

const shutdownGracePeriod = 10 * time.Second

// healxServer serves the JSON API of the records app and the anonymous share pages
type healxServer struct {
	Records  st.RecordStore
	Shares   st.ShareStore
	Users    st.UserStore
	Settings st.SettingsStore
	Sessions *session.Redistore
	Gate     *gate.Gate
	Cipher   *payload.Cipher
	Router   *httprouter.Router

	UploadSizeMaxByte int64
}

func (s *healxServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func setDefaults() {
	viper.SetDefault(cst.EnvAppPort, cst.DefaultAppPort)
	viper.SetDefault(cst.EnvCouchRecordsDB, cst.DefaultCouchRecordsDB)
	viper.SetDefault(cst.EnvCouchRequestTimeout, cst.DefaultCouchRequestTimeout)
	viper.SetDefault(cst.EnvRedisPort, cst.DefaultRedisPort)
	viper.SetDefault(cst.EnvSessionMaxAge, cst.DefaultSessionMaxAge)
	viper.SetDefault(cst.EnvUploadSizeMaxByte, cst.DefaultUploadSizeMaxByte)
	viper.SetDefault(cst.EnvShareFetcherPoolSize, cst.DefaultShareFetcherPoolSize)
	viper.SetDefault(cst.EnvShareCacheSize, cst.DefaultShareCacheSize)
	viper.SetDefault(cst.EnvShareRetention, cst.DefaultShareRetention)
}

// start up application server and serve incoming requests until SIGTERM or SIGINT
func serve() error {
	// read configuration from env vars
	viper.AutomaticEnv()
	setDefaults()
	logging.SetupLog("HealxServer")
	log.WithFields(log.Fields{
		"version": version.Info(),
		"build":   version.BuildContext(),
	}).Info("healx server version")

	// a missing key must stop the server before any record can be written
	c, err := payload.New(viper.GetString(cst.EnvSecretKey))
	if err != nil {
		return err
	}
	sessionKey := viper.GetString(cst.EnvSessionKey)
	if sessionKey == "" {
		return se.NewConfig("missing session key")
	}

	ctx := context.Background()
	// NOTE docker compose's depends_on only guarantees the startup order of containers, not the readiness
	// of the services inside, hence the retries
	db, err := setupRedis()
	if err != nil {
		return err
	}
	defer db.Close()
	rs, err := setupRecordStore(ctx)
	if err != nil {
		return err
	}
	defer rs.Close(ctx)

	shares := st.NewRedisShareStore(db, viper.GetDuration(cst.EnvShareRetention))
	svr := &healxServer{
		Records:           rs,
		Shares:            shares,
		Users:             &st.RedisUserStore{DB: db},
		Settings:          &st.RedisSettingsStore{DB: db},
		Sessions:          session.NewRedistore(db, viper.GetDuration(cst.EnvSessionMaxAge), []byte(sessionKey)),
		Gate:              gate.New(shares, rs, c, viper.GetInt(cst.EnvShareCacheSize), viper.GetInt(cst.EnvShareFetcherPoolSize)),
		Cipher:            c,
		UploadSizeMaxByte: viper.GetInt64(cst.EnvUploadSizeMaxByte),
	}
	svr.SetupMux()

	host, port := viper.GetString(cst.EnvAppHost), viper.GetString(cst.EnvAppPort)
	hs := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", host, port),
		Handler:           svr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		MaxHeaderBytes:    1 << 16,
	}
	errChan := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"host": host,
			"port": port,
		}).Info("healx server is starting up")
		errChan <- hs.ListenAndServe()
	}()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.WithField("signal", sig).Info("shutting down healx server")
		sctx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
		defer cancel()
		return hs.Shutdown(sctx)
	}
}

func depRetryOpts() []rt.RetryOption {
	return []rt.RetryOption{
		rt.WithTimeout(10 * time.Second),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
		rt.WithMaxBackoff(2 * time.Second),
		rt.WithRetryOn(rt.IsDepOffline),
	}
}

func setupRedis() (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%s", viper.GetString(cst.EnvRedisHost), viper.GetString(cst.EnvRedisPort)),
		Password:   viper.GetString(cst.EnvRedisPasswd),
		DB:         viper.GetInt(cst.EnvRedisDB),
		MaxRetries: 3,
	})
	// verify the client is up correctly
	pingFn := func() error {
		_, err := redisClient.Ping().Result()
		return err
	}
	if err := rt.Retry(pingFn, depRetryOpts()...); err != nil {
		redisClient.Close()
		return nil, se.NewServiceFailure("failed initializing Redis").WithCause(err)
	}
	return redisClient, nil
}

func setupRecordStore(ctx context.Context) (*st.CouchRecordStore, error) {
	rs, err := st.NewCouchRecordStore(ctx, &st.CouchConfig{
		DBAddr:         viper.GetString(cst.EnvCouchAddr),
		RecordsDBName:  viper.GetString(cst.EnvCouchRecordsDB),
		DBUsername:     viper.GetString(cst.EnvCouchUser),
		DBPasswd:       viper.GetString(cst.EnvCouchPasswd),
		RequestTimeout: viper.GetDuration(cst.EnvCouchRequestTimeout),
	})
	if err != nil {
		return nil, err
	}
	initFn := func() error {
		return rs.Init(ctx)
	}
	if err := rt.Retry(initFn, depRetryOpts()...); err != nil {
		return nil, se.NewServiceFailure("failed initializing CouchDB").WithCause(err)
	}
	return rs, nil
}
