package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// snapshotTTL bounds how stale a served knob set can be. Reads inside
// the window hit the cached snapshot instead of viper.
const snapshotTTL = 2 * time.Second

type snapshot struct {
	dispatch ports.DispatchParams
	fare     ride.FarePolicy
	taken    time.Time
}

// Provider serves the mutable dispatch and fare knobs. It re-reads
// viper (file watch + env) on each call past the memoization window,
// so a config edit lands on the next dispatch cycle without a restart.
type Provider struct {
	v *viper.Viper

	mu   sync.Mutex
	snap *snapshot
}

var _ ports.ConfigProvider = (*Provider)(nil)

func NewProvider(v *viper.Viper) *Provider {
	return &Provider{v: v}
}

func (p *Provider) Dispatch() ports.DispatchParams {
	return p.current().dispatch
}

func (p *Provider) Fare() ride.FarePolicy {
	return p.current().fare
}

func (p *Provider) current() *snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snap != nil && time.Since(p.snap.taken) < snapshotTTL {
		return p.snap
	}
	p.snap = p.read()
	return p.snap
}

func (p *Provider) read() *snapshot {
	v := p.v

	d := ports.DispatchParams{
		InitialRadiusKM:     v.GetFloat64("DISPATCH_INITIAL_RADIUS_KM"),
		MaxRadiusKM:         v.GetFloat64("DISPATCH_MAX_RADIUS_KM"),
		RadiusIncrementKM:   v.GetFloat64("DISPATCH_RADIUS_INCREMENT_KM"),
		OfferTimeout:        time.Duration(v.GetInt("DISPATCH_OFFER_TIMEOUT_SEC")) * time.Second,
		InterRadiusPause:    time.Duration(v.GetInt("DISPATCH_INTER_RADIUS_PAUSE_SEC")) * time.Second,
		MaxDispatchTime:     time.Duration(v.GetInt("DISPATCH_MAX_TIME_SEC")) * time.Second,
		GraceAfterMaxRadius: time.Duration(v.GetInt("DISPATCH_GRACE_SEC")) * time.Second,
		SweepInterval:       time.Duration(v.GetInt("DISPATCH_SWEEP_INTERVAL_SEC")) * time.Second,
		CaptainLocationTTL:  time.Duration(v.GetInt("CAPTAIN_LOCATION_TTL_SEC")) * time.Second,
		CaptainCooldown:     time.Duration(v.GetInt("DISPATCH_CAPTAIN_COOLDOWN_SEC")) * time.Second,
		RestoreWindow:       time.Duration(v.GetInt("RESTORE_WINDOW_MIN")) * time.Minute,
		RestoreRadiusKM:     v.GetFloat64("RESTORE_RADIUS_KM"),
		RestoreMaxOffers:    v.GetInt("RESTORE_MAX_OFFERS"),
	}
	sanitizeDispatch(&d)

	f := ride.FarePolicy{
		Base:             v.GetFloat64("FARE_BASE"),
		PerKM:            v.GetFloat64("FARE_PER_KM"),
		PerMin:           v.GetFloat64("FARE_PER_MIN"),
		Min:              v.GetFloat64("FARE_MIN"),
		Max:              v.GetFloat64("FARE_MAX"),
		NightMult:        v.GetFloat64("FARE_NIGHT_MULT"),
		WeekendMult:      v.GetFloat64("FARE_WEEKEND_MULT"),
		SurgeMult:        v.GetFloat64("FARE_SURGE_MULT"),
		Currency:         v.GetString("FARE_CURRENCY"),
		FreeCancelWindow: time.Duration(v.GetInt("FARE_FREE_CANCEL_WINDOW_SEC")) * time.Second,
		CancellationFee:  v.GetFloat64("FARE_CANCELLATION_FEE"),
	}
	sanitizeFare(&f)

	return &snapshot{dispatch: d, fare: f, taken: time.Now()}
}

// sanitizeDispatch clamps nonsense values so a bad config edit degrades
// to defaults instead of stalling every dispatch loop.
func sanitizeDispatch(d *ports.DispatchParams) {
	if d.InitialRadiusKM <= 0 {
		d.InitialRadiusKM = 2
	}
	if d.MaxRadiusKM < d.InitialRadiusKM {
		d.MaxRadiusKM = d.InitialRadiusKM
	}
	if d.RadiusIncrementKM <= 0 {
		d.RadiusIncrementKM = 1
	}
	if d.OfferTimeout <= 0 {
		d.OfferTimeout = 15 * time.Second
	}
	if d.InterRadiusPause < 0 {
		d.InterRadiusPause = 0
	}
	if d.MaxDispatchTime <= 0 {
		d.MaxDispatchTime = 300 * time.Second
	}
	if d.GraceAfterMaxRadius < 0 {
		d.GraceAfterMaxRadius = 0
	}
	if d.SweepInterval <= 0 {
		d.SweepInterval = 30 * time.Second
	}
	if d.CaptainLocationTTL <= 0 {
		d.CaptainLocationTTL = 60 * time.Second
	}
	if d.CaptainCooldown < 0 {
		d.CaptainCooldown = 0
	}
	if d.RestoreWindow <= 0 {
		d.RestoreWindow = 30 * time.Minute
	}
	if d.RestoreRadiusKM <= 0 {
		d.RestoreRadiusKM = d.MaxRadiusKM
	}
	if d.RestoreMaxOffers <= 0 {
		d.RestoreMaxOffers = 5
	}
}

func sanitizeFare(f *ride.FarePolicy) {
	if f.PerKM < 0 {
		f.PerKM = 0
	}
	if f.PerMin < 0 {
		f.PerMin = 0
	}
	if f.NightMult <= 0 {
		f.NightMult = 1
	}
	if f.WeekendMult <= 0 {
		f.WeekendMult = 1
	}
	if f.SurgeMult <= 0 {
		f.SurgeMult = 1
	}
	if f.Currency == "" {
		f.Currency = "IQD"
	}
	if f.FreeCancelWindow < 0 {
		f.FreeCancelWindow = 0
	}
	if f.CancellationFee < 0 {
		f.CancellationFee = 0
	}
}
