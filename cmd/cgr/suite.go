package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cgr/internal/config"
	"cgr/internal/coop"
	"cgr/internal/dbfixture"
	"cgr/internal/discovery"
	"cgr/internal/domain"
	"cgr/internal/fixture"
)

// apiClient stands in for a client shared by a whole module.
type apiClient struct {
	mu       sync.Mutex
	requests int
	closed   bool
}

func (c *apiClient) do(ctx context.Context, latency time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("client closed")
	}
	c.requests++
	c.mu.Unlock()

	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type userSession struct {
	client *apiClient
	token  string
}

type cache struct {
	mu    sync.Mutex
	items map[string]string
}

func (c *cache) put(k, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[k] = v
}

func (c *cache) get(k string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[k]
	return v, ok
}

func buildSuite(cfg *config.Config) (*discovery.Suite, error) {
	s := discovery.NewSuite("cgr-demo")

	err := s.Resource(
		fixture.Definition{
			Name:  "client",
			Scope: fixture.ScopeModule,
			Factory: func(r *fixture.Request) (any, error) {
				c := &apiClient{}
				r.AddFinalizer(func() error {
					c.mu.Lock()
					defer c.mu.Unlock()
					c.closed = true
					return nil
				})
				return c, nil
			},
		},
		fixture.Definition{
			Name: "session",
			Deps: []string{"client"},
			Factory: func(r *fixture.Request) (any, error) {
				v, err := r.Resource("client")
				if err != nil {
					return nil, err
				}
				return &userSession{client: v.(*apiClient), token: "token-" + r.CaseID()}, nil
			},
		},
		fixture.Definition{
			Name:  "cache",
			Scope: fixture.ScopeClass,
			Factory: func(r *fixture.Request) (any, error) {
				return &cache{items: make(map[string]string)}, nil
			},
		},
		dbfixture.MySQL(cfg.Database, "mysql", fixture.ScopeModule),
	)
	if err != nil {
		return nil, err
	}

	api := s.Package("api")
	users := s.Module(api, "users_test")

	request := func(latency time.Duration) domain.AsyncFunc {
		return func(t *coop.Task, args domain.Args) error {
			sess, err := domain.Arg[*userSession](args, "session")
			if err != nil {
				return err
			}
			return t.Await(func(ctx context.Context) error {
				return sess.client.do(ctx, latency)
			})
		}
	}

	for _, name := range []string{"test_create_user", "test_get_user", "test_list_users", "test_delete_user"} {
		c := domain.NewCase(users, name)
		c.Group = &domain.GroupMark{Key: "users"}
		c.Resources = []string{"session"}
		c.Async = request(50 * time.Millisecond)
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}

	flaky := domain.NewCase(users, "test_rate_limit")
	flaky.Group = &domain.GroupMark{Key: "users"}
	flaky.Resources = []string{"session"}
	flaky.Marks.XFail = &domain.XFailMark{Reason: "rate limiting not implemented"}
	flaky.Async = func(t *coop.Task, args domain.Args) error {
		if err := t.Sleep(10 * time.Millisecond); err != nil {
			return err
		}
		return errors.New("expected 429, got 200")
	}
	if err := s.Add(flaky); err != nil {
		return nil, err
	}

	pages := domain.NewCase(users, "test_pagination")
	pages.Group = &domain.GroupMark{Key: "pages"}
	pages.Resources = []string{"client"}
	pages.Async = func(t *coop.Task, args domain.Args) error {
		size := domain.MustArg[int](args, "page_size")
		client := domain.MustArg[*apiClient](args, "client")
		for fetched := 0; fetched < 200; fetched += size {
			if err := t.Await(func(ctx context.Context) error {
				return client.do(ctx, time.Millisecond)
			}); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := s.Parametrize(pages, "page_size", 10, 50, 100); err != nil {
		return nil, err
	}

	storage := s.Module(s.Package("storage"), "cache_test")
	cacheClass := s.Class(storage, "TestCache")

	put := domain.NewCase(cacheClass, "test_put")
	put.Resources = []string{"cache"}
	put.Sync = func(args domain.Args) error {
		domain.MustArg[*cache](args, "cache").put("k", "v")
		return nil
	}
	get := domain.NewCase(cacheClass, "test_get_after_put")
	get.Resources = []string{"cache"}
	get.Sync = func(args domain.Args) error {
		if v, ok := domain.MustArg[*cache](args, "cache").get("k"); !ok || v != "v" {
			return fmt.Errorf("cache miss for k: %q", v)
		}
		return nil
	}
	if err := s.Add(put, get); err != nil {
		return nil, err
	}

	db := s.Module(storage, "mysql_test")
	ping := domain.NewCase(db, "test_ping")
	ping.Group = &domain.GroupMark{Key: "mysql"}
	ping.Resources = []string{"mysql"}
	ping.Marks.Skip = domain.SkipIf(os.Getenv("CGR_MYSQL") == "", "CGR_MYSQL is not set")
	ping.Async = func(t *coop.Task, args domain.Args) error {
		conn, err := dbfixture.Arg(args, "mysql")
		if err != nil {
			return err
		}
		return t.Await(conn.PingContext)
	}
	if err := s.Add(ping); err != nil {
		return nil, err
	}

	return s, nil
}
