package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spectra-gallery/spectra-playground/auth"
	"github.com/spectra-gallery/spectra-playground/cache"
	"github.com/spectra-gallery/spectra-playground/config"
	"github.com/spectra-gallery/spectra-playground/cryptox"
	"github.com/spectra-gallery/spectra-playground/lab"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/mq"
	"github.com/spectra-gallery/spectra-playground/store"
	"github.com/spectra-gallery/spectra-playground/worker"
)

type Service struct {
	Config  *config.Config
	Store   store.PlaygroundStore
	Cache   cache.PlaygroundCache
	SweepMQ mq.MessageQueue
	Lab     lab.Client
	KDFPool *worker.KDFPool
	Hasher  *auth.PasswordHasher
	Tokens  *auth.TokenIssuer
	Log     logging.Logger
	// Now is the service clock. Token, share and attempt expiry all use it.
	Now func() time.Time

	kdf cryptox.KDF
}

func NewService(
	cfg *config.Config,
	playgroundStore store.PlaygroundStore,
	playgroundCache cache.PlaygroundCache,
	sweepQueue mq.MessageQueue,
	labClient lab.Client,
	kdfPool *worker.KDFPool,
	log logging.Logger,
) (*Service, error) {
	kdf, err := cryptox.LookupKDF(cfg.KDFScheme)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.KDFScheme)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		Config:  cfg,
		Store:   playgroundStore,
		Cache:   playgroundCache,
		SweepMQ: sweepQueue,
		Lab:     labClient,
		KDFPool: kdfPool,
		Hasher:  hasher,
		Log:     log.With("component", "service"),
		Now:     time.Now,
		kdf:     kdf,
	}

	tokens, err := auth.NewTokenIssuer(cfg.Secret(), cfg.TokenTTL, svc.now)
	if err != nil {
		return nil, err
	}
	svc.Tokens = tokens

	return svc, nil
}

func (s *Service) now() time.Time {
	return s.Now()
}

// ResourceUpdatedMessage is published on the resource channel after every
// successful mutation. It never carries content.
type ResourceUpdatedMessage struct {
	Type        string   `json:"type"`
	ResourceId  string   `json:"resourceId"`
	Revision    int      `json:"revision"`
	Fields      []string `json:"fields"`
	IsEncrypted bool     `json:"isEncrypted"`
}

// Async side-effects - callers return as soon as the store operation is done
func (s *Service) publishUpdate(resource models.Resource, fields ...string) {
	go func() {
		msg := ResourceUpdatedMessage{
			Type:        "resource_updated",
			ResourceId:  resource.Id,
			Revision:    resource.Revision,
			Fields:      fields,
			IsEncrypted: resource.IsEncrypted(),
		}
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := s.Cache.Publish(context.Background(), cache.ResourceChannel(resource.Id), msgBytes); err != nil {
			s.Log.Warn(context.Background(), "publish resource update failed", "resourceId", resource.Id, "error", err)
		}
	}()
}
