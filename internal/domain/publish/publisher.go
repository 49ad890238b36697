package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/retry"
)

// File is one object of a tree. Body wins over Path when both are set.
type File struct {
	Key          string
	Path         string
	Body         []byte
	ContentType  string
	CacheControl string
}

// Tree is everything published for one asset.
type Tree struct {
	AssetID string
	// Prefix is the asset's key prefix, used when pruning.
	Prefix string
	Files  []File
	Master File
}

// Len is the number of objects including the master.
func (t Tree) Len() int {
	return len(t.Files) + 1
}

// Result describes a completed publish.
type Result struct {
	MasterKey string
	MasterURL string
	Keys      []string
	Pruned    int
}

// Options tunes the publisher.
type Options struct {
	Concurrency int
	Retry       retry.Policy
	// Prune removes keys under the asset prefix that the new tree did not write.
	Prune bool
	// Observer, when set, sees every upload attempt.
	Observer Observer
}

// Observer receives upload measurements.
type Observer interface {
	ObjectStored(contentType string, bytes int, elapsed time.Duration, err error)
	ObjectRetried(contentType string)
}

// Publisher uploads trees with the master playlist strictly last, so a
// readable master always points at a complete tree.
type Publisher struct {
	store  ObjectStore
	locker Locker
	opts   Options
	log    zerolog.Logger

	localMu sync.Mutex
}

func New(store ObjectStore, locker Locker, opts Options, log zerolog.Logger) *Publisher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Publisher{
		store:  store,
		locker: locker,
		opts:   opts,
		log:    log.With().Str("component", "publisher").Logger(),
	}
}

// Store returns the underlying object store.
func (p *Publisher) Store() ObjectStore {
	return p.store
}

// Publish uploads every file of tree, then the master. If anything before the
// master fails the master is never written. onObject is called after each
// successful upload with the running count and must be safe for concurrent use.
func (p *Publisher) Publish(ctx context.Context, tree Tree, onObject func(done, total int)) (*Result, error) {
	if tree.Master.Key == "" {
		return nil, pipelineerrors.Internal(pipelineerrors.StagePublish, "tree has no master playlist", nil)
	}

	log := p.log.With().Str("asset_id", tree.AssetID).Logger()
	started := time.Now()
	total := tree.Len()
	var done atomic.Int32
	report := func() {
		n := int(done.Add(1))
		if onObject != nil {
			onObject(n, total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for _, f := range tree.Files {
		g.Go(func() error {
			if err := p.put(gctx, f); err != nil {
				return err
			}
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, p.wrap(tree.AssetID, err)
	}

	if err := p.put(ctx, tree.Master); err != nil {
		return nil, p.wrap(tree.AssetID, err)
	}
	report()

	keys := make([]string, 0, total)
	for _, f := range tree.Files {
		keys = append(keys, f.Key)
	}
	keys = append(keys, tree.Master.Key)

	result := &Result{
		MasterKey: tree.Master.Key,
		MasterURL: p.store.PublicURL(tree.Master.Key),
		Keys:      keys,
	}

	if p.opts.Prune && tree.Prefix != "" {
		pruned, err := p.prune(ctx, tree.Prefix, keys)
		if err != nil {
			log.Warn().Err(err).Str("prefix", tree.Prefix).Msg("failed to prune stale objects")
		}
		result.Pruned = pruned
	}

	log.Info().
		Int("objects", total).
		Int("pruned", result.Pruned).
		Dur("elapsed", time.Since(started)).
		Msg("tree published")
	return result, nil
}

func (p *Publisher) put(ctx context.Context, f File) error {
	body := f.Body
	if body == nil {
		raw, err := os.ReadFile(f.Path)
		if err != nil {
			return pipelineerrors.Internal(pipelineerrors.StagePublish, fmt.Sprintf("read staged file for %s", f.Key), err)
		}
		body = raw
	}
	obj := Object{Key: f.Key, Body: body, ContentType: f.ContentType, CacheControl: f.CacheControl}

	executor := retry.NewExecutor(p.opts.Retry, retry.WithOnRetry(func(attempt int, err error) {
		p.log.Warn().Err(err).Str("key", f.Key).Int("attempt", attempt).Msg("retrying object upload")
		if p.opts.Observer != nil {
			p.opts.Observer.ObjectRetried(f.ContentType)
		}
	}))
	return executor.Execute(ctx, func(ctx context.Context, _ int) error {
		started := time.Now()
		err := p.store.PutObject(ctx, obj)
		if p.opts.Observer != nil {
			p.opts.Observer.ObjectStored(f.ContentType, len(body), time.Since(started), err)
		}
		if err != nil {
			return pipelineerrors.Classify(pipelineerrors.StagePublish, err)
		}
		return nil
	})
}

func (p *Publisher) prune(ctx context.Context, prefix string, written []string) (int, error) {
	existing, err := p.store.ListKeys(ctx, strings.TrimRight(prefix, "/")+"/")
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(written))
	for _, k := range written {
		keep[k] = struct{}{}
	}
	var stale []string
	for _, k := range existing {
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := p.store.DeleteKeys(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (p *Publisher) wrap(assetID string, err error) error {
	var pe *pipelineerrors.PipelineError
	if !errors.As(err, &pe) {
		pe = pipelineerrors.Classify(pipelineerrors.StagePublish, err)
	}
	return pe.WithAsset(assetID)
}

// SetPublicReadPolicy makes every object under prefix anonymously readable.
// Repeated calls converge on the same policy and report changed=false.
func (p *Publisher) SetPublicReadPolicy(ctx context.Context, prefix string) (bool, error) {
	bucket := p.store.Bucket()
	unlock, err := p.lock(ctx, "bucket-policy:"+bucket)
	if err != nil {
		return false, pipelineerrors.StoreUnavailable("failed to acquire bucket policy lock", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn().Err(err).Str("bucket", bucket).Msg("failed to release bucket policy lock")
		}
	}()

	executor := retry.NewExecutor(p.opts.Retry)
	switch store := p.store.(type) {
	case PolicyStore:
		return retry.ExecuteWithResult(ctx, executor, func(ctx context.Context, _ int) (bool, error) {
			existing, err := store.GetBucketPolicy(ctx, bucket)
			if err != nil {
				return false, pipelineerrors.Classify(pipelineerrors.StagePublish, err)
			}
			merged, changed, err := MergePublicRead(existing, bucket, prefix)
			if err != nil {
				return false, pipelineerrors.Internal(pipelineerrors.StagePublish, "existing bucket policy is not valid JSON", err)
			}
			if !changed {
				p.log.Debug().Str("bucket", bucket).Str("prefix", prefix).Msg("public read policy already in place")
				return false, nil
			}
			if err := store.SetBucketPolicy(ctx, bucket, merged); err != nil {
				return false, pipelineerrors.Classify(pipelineerrors.StagePublish, err)
			}
			p.log.Info().Str("bucket", bucket).Str("prefix", prefix).Msg("public read policy applied")
			return true, nil
		})
	case PublicAccessGranter:
		return retry.ExecuteWithResult(ctx, executor, func(ctx context.Context, _ int) (bool, error) {
			changed, err := store.GrantPublicRead(ctx, prefix)
			if err != nil {
				return false, pipelineerrors.Classify(pipelineerrors.StagePublish, err)
			}
			return changed, nil
		})
	default:
		p.log.Info().Str("bucket", bucket).Msg("store has no access policy, objects are served as-is")
		return false, nil
	}
}

func (p *Publisher) lock(ctx context.Context, name string) (func(context.Context) error, error) {
	if p.locker != nil {
		return p.locker.Lock(ctx, name)
	}
	p.localMu.Lock()
	return func(context.Context) error {
		p.localMu.Unlock()
		return nil
	}, nil
}
