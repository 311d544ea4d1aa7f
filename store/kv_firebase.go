package store

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const firebaseRoot = "jjm"

// FirebaseKV stores each key as a string node under /jjm in a Firebase
// Realtime Database.
type FirebaseKV struct {
	client *db.Client
	logger *zap.Logger
}

func NewFirebaseKV(ctx context.Context, dbURL, serviceAccountJSON string, logger *zap.Logger) (*FirebaseKV, error) {
	conf := &firebase.Config{
		DatabaseURL: dbURL,
	}

	opt := option.WithCredentialsJSON([]byte(serviceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, eris.Wrap(err, "firebase: init app")
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "firebase: database client")
	}

	fk := &FirebaseKV{
		client: client,
		logger: logger,
	}

	if err := fk.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, err
	}

	return fk, nil
}

// testConnection tests Firebase connection with retry logic
func (fk *FirebaseKV) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fk.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data interface{}
		err := fk.client.NewRef(firebaseRoot).Child(KeyInitialized).Get(ctx, &data)
		if err == nil {
			fk.logger.Info("Firebase connection successful")
			return nil
		}

		fk.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return eris.Errorf("firebase: failed to connect after %d attempts", maxRetries)
}

func (fk *FirebaseKV) ref(key string) *db.Ref {
	return fk.client.NewRef(firebaseRoot).Child(key)
}

func (fk *FirebaseKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	if err := fk.ref(key).Get(ctx, &value); err != nil {
		return nil, eris.Wrapf(err, "firebase: get %s", key)
	}
	// absent nodes decode as the zero value
	if value == "" {
		return nil, ErrKeyNotFound
	}
	return []byte(value), nil
}

func (fk *FirebaseKV) Put(ctx context.Context, key string, value []byte) error {
	return eris.Wrapf(fk.ref(key).Set(ctx, string(value)), "firebase: put %s", key)
}

func (fk *FirebaseKV) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(fk.ref(key).Delete(ctx), "firebase: delete %s", key)
}

func (fk *FirebaseKV) Close() error { return nil }
