package samgr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// InputMethodSystemAbilityID is the id the service manager knows the input
// method service by.
const InputMethodSystemAbilityID int32 = 3703

// State is the load state the service manager reports
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
)

// Status is the body of a system ability status reply
type Status struct {
	SAID    int32  `json:"said"`
	State   State  `json:"state"`
	Address string `json:"address,omitempty"`
}

// Config configures a Client
type Config struct {
	Address      string
	LoadTimeout  time.Duration
	RetryCount   int
	PollInterval time.Duration
}

// Client starts and stops system abilities on demand through the service
// manager's HTTP API.
type Client struct {
	cfg    Config
	resty  *resty.Client
	poll   *rate.Limiter
	logger *zap.Logger
}

// NewClient creates a client for cfg.Address
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 8 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}

	r := resty.New().
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.LoadTimeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("User-Agent", "imf-imsa/1.0").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		cfg:    cfg,
		resty:  r,
		poll:   rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		logger: logger.Named("samgr"),
	}
}

// CheckSystemAbility returns the current state of said
func (c *Client) CheckSystemAbility(ctx context.Context, said int32) (Status, error) {
	var status Status
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&status).
		Get(fmt.Sprintf("/v1/system-abilities/%d", said))
	if err != nil {
		return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "check %d: %v", said, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Status{SAID: said, State: StateUnloaded}, nil
	}
	if resp.IsError() {
		return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "check %d: %s", said, resp.Status())
	}
	return status, nil
}

// LoadSystemAbility asks the service manager to load said and waits until
// it reports loaded or the load timeout elapses.
func (c *Client) LoadSystemAbility(ctx context.Context, said int32) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	if st, err := c.CheckSystemAbility(ctx, said); err == nil && st.State == StateLoaded {
		return st, nil
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/v1/system-abilities/%d/load", said))
	if err != nil {
		return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "load %d: %v", said, err)
	}
	if resp.IsError() {
		return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "load %d: %s", said, resp.Status())
	}
	c.logger.Info("system ability load requested", zap.Int32("said", said))

	for {
		if err := c.poll.Wait(ctx); err != nil {
			return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "load %d not finished in %s", said, c.cfg.LoadTimeout)
		}
		st, err := c.CheckSystemAbility(ctx, said)
		if err != nil {
			if ctx.Err() != nil {
				return Status{}, errs.Wrap(errs.ErrorOperateSystemService, "load %d not finished in %s", said, c.cfg.LoadTimeout)
			}
			c.logger.Debug("status check failed", zap.Int32("said", said), zap.Error(err))
			continue
		}
		if st.State == StateLoaded {
			c.logger.Info("system ability loaded", zap.Int32("said", said), zap.String("address", st.Address))
			return st, nil
		}
	}
}

// UnloadSystemAbility asks the service manager to stop said
func (c *Client) UnloadSystemAbility(ctx context.Context, said int32) error {
	resp, err := c.resty.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/v1/system-abilities/%d/unload", said))
	if err != nil {
		return errs.Wrap(errs.ErrorOperateSystemService, "unload %d: %v", said, err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return errs.Wrap(errs.ErrorOperateSystemService, "unload %d: %s", said, resp.Status())
	}
	return nil
}
