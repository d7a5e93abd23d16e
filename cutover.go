package warmcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CutoverState is one step of the controller's state machine:
//
//	Deploying -> Warming -> Validating -> {CuttingOver -> Active}
//	                                    | {RollingBack -> Retired}
type CutoverState string

const (
	StateDeploying   CutoverState = "deploying"
	StateWarming     CutoverState = "warming"
	StateValidating  CutoverState = "validating"
	StateCuttingOver CutoverState = "cutting_over"
	StateActive      CutoverState = "active"
	StateRollingBack CutoverState = "rolling_back"
	StateRetired     CutoverState = "retired"
)

// Provisioner stands environments up and tears them down. Treated as a black
// box with success/failure outcomes.
type Provisioner interface {
	DeployEnvironment(ctx context.Context) (id string, err error)
	TeardownEnvironment(ctx context.Context, id string) error
}

// Router redirects live traffic between environments.
type Router interface {
	SwitchTraffic(ctx context.Context, fromID, toID string) error
}

// WarmFunc runs a warming job against the newly provisioned environment.
type WarmFunc func(ctx context.Context, envID string) (*Report, error)

// ValidateFunc judges a warming report; usually Gate.Validate bound to the
// new environment's store and configured thresholds.
type ValidateFunc func(ctx context.Context, report *Report) Decision

// CutoverResult always ends in Active or Retired - never an ambiguous
// in-between routing state.
type CutoverResult struct {
	State    CutoverState   `json:"state"`
	NewEnvID string         `json:"new_env_id,omitempty"`
	Decision *Decision      `json:"decision,omitempty"`
	Path     []CutoverState `json:"path"`
}

type ControllerOptions struct {
	// Required
	Provisioner Provisioner
	Router      Router
	Warm        WarmFunc
	Validate    ValidateFunc

	Recorder  Recorder // optional; persists the report and decision
	ActiveEnv string   // currently live environment id; "" when none exists

	// GracePeriod delays teardown of the prior environment after a
	// successful switch so in-flight requests against the old path complete.
	GracePeriod time.Duration

	// Force cuts over despite failed validation. An explicit,
	// separately-authorized operator action, never a default.
	Force bool

	Logger Logger
}

// Controller drives one cutover attempt end to end. CuttingOver is reachable
// only from Validating with a passing decision (or the explicit Force
// override); a failed validation deterministically ends in Retired with the
// existing routing untouched.
type Controller struct {
	prov      Provisioner
	router    Router
	warm      WarmFunc
	validate  ValidateFunc
	rec       Recorder
	activeEnv string
	grace     time.Duration
	force     bool
	log       Logger
}

func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Provisioner == nil || opts.Router == nil {
		return nil, errors.New("warmcache: provisioner and router are required")
	}
	if opts.Warm == nil || opts.Validate == nil {
		return nil, errors.New("warmcache: warm and validate funcs are required")
	}
	return &Controller{
		prov:      opts.Provisioner,
		router:    opts.Router,
		warm:      opts.Warm,
		validate:  opts.Validate,
		rec:       opts.Recorder,
		activeEnv: opts.ActiveEnv,
		grace:     opts.GracePeriod,
		force:     opts.Force,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
	}, nil
}

// Run executes one deploy/warm/validate/cutover attempt. The returned result
// is non-nil even on error so the operator always sees how far the attempt
// got and why it retired.
func (c *Controller) Run(ctx context.Context) (*CutoverResult, error) {
	res := &CutoverResult{}
	step := func(s CutoverState) {
		res.Path = append(res.Path, s)
		c.log.Info("cutover state", Fields{"state": s})
	}
	rollback := func(envID string) {
		step(StateRollingBack)
		c.teardown(ctx, envID)
		step(StateRetired)
		res.State = StateRetired
	}

	step(StateDeploying)
	envID, err := c.prov.DeployEnvironment(ctx)
	if err != nil {
		if envID != "" {
			// partially provisioned; never leave it behind
			c.teardown(ctx, envID)
		}
		step(StateRetired)
		res.State = StateRetired
		return res, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	res.NewEnvID = envID

	step(StateWarming)
	report, err := c.warm(ctx, envID)
	if err != nil {
		rollback(envID)
		return res, err
	}
	if c.rec != nil {
		if rerr := c.rec.SaveReport(report); rerr != nil {
			c.log.Warn("warming report not persisted", Fields{"job": report.JobID, "err": rerr})
		}
	}

	step(StateValidating)
	dec := c.validate(ctx, report)
	res.Decision = &dec
	if c.rec != nil {
		if rerr := c.rec.SaveDecision(dec); rerr != nil {
			c.log.Warn("cutover decision not persisted", Fields{"job": dec.JobID, "err": rerr})
		}
	}

	if !dec.Passed {
		if !c.force {
			c.log.Warn("validation failed, rolling back", Fields{"job": dec.JobID, "reasons": dec.Reasons})
			rollback(envID)
			return res, nil
		}
		c.log.Warn("validation failed but force override set, cutting over anyway", Fields{
			"job":     dec.JobID,
			"reasons": dec.Reasons,
		})
	}

	step(StateCuttingOver)
	if err := c.router.SwitchTraffic(ctx, c.activeEnv, envID); err != nil {
		// Switch failed: traffic still targets the old environment, so
		// retiring the new one restores the pre-attempt state.
		rollback(envID)
		return res, fmt.Errorf("%w: %v", ErrRoutingFailed, err)
	}

	step(StateActive)
	res.State = StateActive
	c.log.Info("cutover complete", Fields{"env": envID, "previous": c.activeEnv})

	c.retirePrevious(ctx)
	return res, nil
}

// retirePrevious tears down the old environment after the grace period.
func (c *Controller) retirePrevious(ctx context.Context) {
	if c.activeEnv == "" {
		return
	}
	if c.grace > 0 {
		t := time.NewTimer(c.grace)
		defer t.Stop()
		select {
		case <-ctx.Done():
			c.log.Warn("grace period interrupted; previous environment left running", Fields{
				"env": c.activeEnv,
			})
			return
		case <-t.C:
		}
	}
	c.teardown(ctx, c.activeEnv)
}

// teardown is best-effort and runs on its own deadline so a cancelled cutover
// still cleans up.
func (c *Controller) teardown(ctx context.Context, id string) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := c.prov.TeardownEnvironment(tctx, id); err != nil {
		c.log.Error("environment teardown failed", Fields{"env": id, "err": err})
		return
	}
	c.log.Info("environment torn down", Fields{"env": id})
}
