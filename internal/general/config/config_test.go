package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestProviderDefaults(t *testing.T) {
	p := NewProvider(newTestViper())

	d := p.Dispatch()
	if d.InitialRadiusKM != 2 {
		t.Errorf("InitialRadiusKM = %v, want 2", d.InitialRadiusKM)
	}
	if d.MaxRadiusKM != 10 {
		t.Errorf("MaxRadiusKM = %v, want 10", d.MaxRadiusKM)
	}
	if d.OfferTimeout != 15*time.Second {
		t.Errorf("OfferTimeout = %v, want 15s", d.OfferTimeout)
	}
	if d.InterRadiusPause != 5*time.Second {
		t.Errorf("InterRadiusPause = %v, want 5s", d.InterRadiusPause)
	}
	if d.MaxDispatchTime != 300*time.Second {
		t.Errorf("MaxDispatchTime = %v, want 300s", d.MaxDispatchTime)
	}
	if d.GraceAfterMaxRadius != 30*time.Second {
		t.Errorf("GraceAfterMaxRadius = %v, want 30s", d.GraceAfterMaxRadius)
	}
	if d.CaptainCooldown != 60*time.Second {
		t.Errorf("CaptainCooldown = %v, want 60s", d.CaptainCooldown)
	}
	if d.RestoreWindow != 30*time.Minute {
		t.Errorf("RestoreWindow = %v, want 30m", d.RestoreWindow)
	}

	f := p.Fare()
	if f.Currency != "IQD" {
		t.Errorf("Currency = %q, want IQD", f.Currency)
	}
	if f.Min != 2000 {
		t.Errorf("Min = %v, want 2000", f.Min)
	}
}

func TestProviderOverride(t *testing.T) {
	v := newTestViper()
	v.Set("DISPATCH_INITIAL_RADIUS_KM", 3.5)
	v.Set("DISPATCH_OFFER_TIMEOUT_SEC", 20)
	v.Set("FARE_BASE", 1500.0)

	p := NewProvider(v)

	d := p.Dispatch()
	if d.InitialRadiusKM != 3.5 {
		t.Errorf("InitialRadiusKM = %v, want 3.5", d.InitialRadiusKM)
	}
	if d.OfferTimeout != 20*time.Second {
		t.Errorf("OfferTimeout = %v, want 20s", d.OfferTimeout)
	}
	if got := p.Fare().Base; got != 1500 {
		t.Errorf("Fare.Base = %v, want 1500", got)
	}
}

func TestProviderSanitizesBadValues(t *testing.T) {
	v := newTestViper()
	v.Set("DISPATCH_INITIAL_RADIUS_KM", -1.0)
	v.Set("DISPATCH_MAX_RADIUS_KM", 0.5) // below initial after sanitize
	v.Set("DISPATCH_OFFER_TIMEOUT_SEC", 0)
	v.Set("FARE_NIGHT_MULT", -2.0)

	p := NewProvider(v)

	d := p.Dispatch()
	if d.InitialRadiusKM != 2 {
		t.Errorf("InitialRadiusKM = %v, want sanitized default 2", d.InitialRadiusKM)
	}
	if d.MaxRadiusKM < d.InitialRadiusKM {
		t.Errorf("MaxRadiusKM = %v, want >= InitialRadiusKM %v", d.MaxRadiusKM, d.InitialRadiusKM)
	}
	if d.OfferTimeout != 15*time.Second {
		t.Errorf("OfferTimeout = %v, want sanitized default 15s", d.OfferTimeout)
	}
	if got := p.Fare().NightMult; got != 1 {
		t.Errorf("NightMult = %v, want sanitized 1", got)
	}
}

func TestProviderMemoizesWithinWindow(t *testing.T) {
	v := newTestViper()
	p := NewProvider(v)

	before := p.Dispatch()
	v.Set("DISPATCH_INITIAL_RADIUS_KM", 9.0)

	// inside the memoization window the cached snapshot is served
	after := p.Dispatch()
	if after.InitialRadiusKM != before.InitialRadiusKM {
		t.Errorf("InitialRadiusKM changed within memoization window: %v -> %v", before.InitialRadiusKM, after.InitialRadiusKM)
	}

	// forcing the snapshot to expire picks up the new value
	p.mu.Lock()
	p.snap.taken = time.Now().Add(-2 * snapshotTTL)
	p.mu.Unlock()

	if got := p.Dispatch().InitialRadiusKM; got != 9 {
		t.Errorf("InitialRadiusKM after expiry = %v, want 9", got)
	}
}

func TestConfigValidate(t *testing.T) {
	c := &Config{}
	c.Database.Port = 5432
	c.Database.User = "u"
	c.Database.Name = "n"
	c.RabbitMQ.Port = 5672
	c.Redis.Port = 6379
	c.Server.Port = 3000
	c.JWT.SecretKey = "secret"

	if err := c.validate(); err != nil {
		t.Fatalf("validate() = %v, want nil", err)
	}

	c.JWT.SecretKey = "  "
	if err := c.validate(); err == nil {
		t.Fatal("validate() = nil, want error for blank JWT_SECRET")
	}
}

func TestConnectionStrings(t *testing.T) {
	c := &Config{}
	c.Database.Host = "db"
	c.Database.Port = 5432
	c.Database.User = "app"
	c.Database.Password = "pw"
	c.Database.Name = "rides"
	c.RabbitMQ.Host = "mq"
	c.RabbitMQ.Port = 5672
	c.RabbitMQ.User = "guest"
	c.RabbitMQ.Password = "guest"
	c.Redis.Host = "cache"
	c.Redis.Port = 6379

	if got, want := c.PostgresDSN(), "postgres://app:pw@db:5432/rides?sslmode=disable"; got != want {
		t.Errorf("PostgresDSN() = %q, want %q", got, want)
	}
	if got, want := c.AMQPURL(), "amqp://guest:guest@mq:5672/"; got != want {
		t.Errorf("AMQPURL() = %q, want %q", got, want)
	}
	if got, want := c.RedisAddr(), "cache:6379"; got != want {
		t.Errorf("RedisAddr() = %q, want %q", got, want)
	}
}
