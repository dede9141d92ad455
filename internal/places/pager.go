package places

import (
	"context"
	"iter"
	"time"
)

const (
	// DefaultMaxPages caps pagination per category filter.
	DefaultMaxPages = 3
	// DefaultPageDelay is how long a next_page_token needs before it becomes valid.
	DefaultPageDelay = 2 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pager walks a paginated nearby search with a fixed page cap and inter-page delay.
type Pager struct {
	Directory Directory
	MaxPages  int
	Delay     time.Duration
	Sleep     SleepFunc
}

// NewPager returns a Pager with default limits.
func NewPager(dir Directory) *Pager {
	return &Pager{
		Directory: dir,
		MaxPages:  DefaultMaxPages,
		Delay:     DefaultPageDelay,
		Sleep:     Sleep,
	}
}

// Pages returns a finite sequence of result pages for req. The sequence ends
// after MaxPages pages, when no next page token is returned, or after the
// first error, which is yielded with a zero Page. A page whose status is
// StatusError is yielded as an *UpstreamError.
func (p *Pager) Pages(ctx context.Context, req NearbyRequest) iter.Seq2[Page, error] {
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return func(yield func(Page, error) bool) {
		next := req
		for n := 0; n < maxPages; n++ {
			if n > 0 {
				if err := sleep(ctx, p.Delay); err != nil {
					yield(Page{}, err)
					return
				}
			}

			page, err := p.Directory.SearchNearby(ctx, next)
			if err == nil && page.Status == StatusError {
				err = &UpstreamError{Op: "nearby search", Status: "ERROR"}
			}
			if err != nil {
				yield(Page{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if page.NextPageToken == "" {
				return
			}
			next.PageToken = page.NextPageToken
		}
	}
}
