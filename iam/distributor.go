package iam

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Ashokgmindia/review360/logger"
)

// ============================================================================
// SIGNED MATRIX BUNDLES
// ============================================================================

// SignedMatrixBundle is a policy matrix config plus an ed25519 signature over
// its checksum, safe to push to downstream enforcement points.
type SignedMatrixBundle struct {
	Config    *MatrixConfig  `json:"config"`
	Checksum  string         `json:"checksum"`
	Signature string         `json:"signature"` // base64(ed25519 sig)
	Meta      map[string]any `json:"meta,omitempty"`
}

func bundleDigest(checksum string, version int) ([]byte, error) {
	return json.Marshal(struct {
		Version  int
		Checksum string
	}{
		Version:  version,
		Checksum: checksum,
	})
}

// SignMatrixBundle signs the config's matrix checksum with priv.
func SignMatrixBundle(priv ed25519.PrivateKey, cfg *MatrixConfig) (*SignedMatrixBundle, error) {
	m, err := cfg.ToMatrix()
	if err != nil {
		return nil, err
	}
	checksum := m.Checksum()
	data, err := bundleDigest(checksum, cfg.Version)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, data)
	return &SignedMatrixBundle{
		Config:    cfg,
		Checksum:  checksum,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyMatrixBundle checks the signature and that the carried checksum still
// matches the config, so a tampered bundle fails even under a valid signature.
func VerifyMatrixBundle(pub ed25519.PublicKey, b *SignedMatrixBundle) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(b.Signature)
	if err != nil {
		return false, err
	}
	data, err := bundleDigest(b.Checksum, b.Config.Version)
	if err != nil {
		return false, err
	}
	if !ed25519.Verify(pub, data, sig) {
		return false, fmt.Errorf("signature mismatch")
	}
	m, err := b.Config.ToMatrix()
	if err != nil {
		return false, err
	}
	if m.Checksum() != b.Checksum {
		return false, fmt.Errorf("checksum mismatch")
	}
	return true, nil
}

// ApplySignedBundle verifies the bundle and swaps its matrix in.
func (e *Engine) ApplySignedBundle(pub ed25519.PublicKey, bundle *SignedMatrixBundle) error {
	ok, err := VerifyMatrixBundle(pub, bundle)
	if err != nil || !ok {
		return fmt.Errorf("bundle verification failed: %v", err)
	}
	return e.ApplyConfig(bundle.Config)
}

// ============================================================================
// BUNDLE DISTRIBUTOR
// ============================================================================

// BundleSubscriber receives freshly signed bundles when the matrix changes.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedMatrixBundle) error
}

type BundleSubscriberFunc func(ctx context.Context, pub ed25519.PublicKey, bundle *SignedMatrixBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedMatrixBundle) error {
	return f(ctx, pub, bundle)
}

// MatrixSource yields the current declarative matrix to distribute.
type MatrixSource interface {
	CurrentConfig(ctx context.Context) (*MatrixConfig, error)
}

// MatrixSourceFunc adapts a function to MatrixSource.
type MatrixSourceFunc func(ctx context.Context) (*MatrixConfig, error)

func (f MatrixSourceFunc) CurrentConfig(ctx context.Context) (*MatrixConfig, error) { return f(ctx) }

// MatrixBundleDistributor signs and fans out matrix bundles to registered
// subscribers whenever it is notified of a change, and rotates its signing key
// on an interval.
type MatrixBundleDistributor struct {
	source           MatrixSource
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan struct{}
	stopCh           chan struct{}
	subscribers      []BundleSubscriber
	logger           logger.Logger
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type MatrixBundleDistributorOption func(*MatrixBundleDistributor)

// WithBundleSigningKey seeds the distributor with a fixed key instead of a
// generated one.
func WithBundleSigningKey(priv ed25519.PrivateKey) MatrixBundleDistributorOption {
	return func(d *MatrixBundleDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = priv.Public().(ed25519.PublicKey)
		}
	}
}

func WithBundleRotationInterval(interval time.Duration) MatrixBundleDistributorOption {
	return func(d *MatrixBundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

func WithBundleLogger(l logger.Logger) MatrixBundleDistributorOption {
	return func(d *MatrixBundleDistributor) { d.logger = l }
}

func NewMatrixBundleDistributor(source MatrixSource, opts ...MatrixBundleDistributorOption) (*MatrixBundleDistributor, error) {
	if source == nil {
		return nil, fmt.Errorf("matrix source is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &MatrixBundleDistributor{
		source:           source,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
		logger:           logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

func (d *MatrixBundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-d.notifyCh:
				if err := d.distribute(ctx); err != nil {
					d.logger.Error("bundle distribution failed", "error", err.Error())
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.logger.Error("bundle key rotation failed", "error", err.Error())
				}
			}
		}
	}()
}

func (d *MatrixBundleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyMatrixChange schedules a distribution pass. Coalesces bursts.
func (d *MatrixBundleDistributor) NotifyMatrixChange() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

func (d *MatrixBundleDistributor) RegisterSubscriber(sub BundleSubscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

func (d *MatrixBundleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	return nil
}

func (d *MatrixBundleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *MatrixBundleDistributor) distribute(ctx context.Context) error {
	cfg, err := d.source.CurrentConfig(ctx)
	if err != nil {
		return err
	}
	d.mu.RLock()
	priv := d.priv
	d.mu.RUnlock()
	bundle, err := SignMatrixBundle(priv, cfg)
	if err != nil {
		return err
	}
	bundle.Meta = map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339Nano),
		"signing_key":  base64.StdEncoding.EncodeToString(d.CurrentPublicKey()),
	}

	d.mu.RLock()
	subs := append([]BundleSubscriber(nil), d.subscribers...)
	d.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.OnBundle(ctx, d.CurrentPublicKey(), bundle); err != nil {
			d.logger.Error("bundle subscriber error", "error", err.Error())
		}
	}
	return nil
}
