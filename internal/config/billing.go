package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanConfig is one purchasable plan as declared in plans.yml.
type PlanConfig struct {
	ID             string   `mapstructure:"id"`
	Name           string   `mapstructure:"name"`
	Price          int64    `mapstructure:"price"`
	Discount       int64    `mapstructure:"discount"`
	Type           string   `mapstructure:"type"`
	Level          string   `mapstructure:"level"`
	CoversChildren bool     `mapstructure:"covers_children"`
	Description    string   `mapstructure:"description"`
	Features       []string `mapstructure:"features"`
}

// PlanCatalog is the full set of plans offered to tenants.
type PlanCatalog struct {
	Currency string       `mapstructure:"currency"`
	Plans    []PlanConfig `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Currency: "IDR",
		Plans: []PlanConfig{
			{
				ID:          "rt-monthly",
				Name:        "RT Bulanan",
				Price:       50_000,
				Type:        "MONTHLY",
				Level:       "RT",
				Description: "Langganan bulanan untuk satu RT",
				Features:    []string{"data warga", "iuran warga", "surat pengantar"},
			},
			{
				ID:          "rt-yearly",
				Name:        "RT Tahunan",
				Price:       600_000,
				Discount:    100_000,
				Type:        "YEARLY",
				Level:       "RT",
				Description: "Langganan tahunan untuk satu RT",
				Features:    []string{"data warga", "iuran warga", "surat pengantar"},
			},
			{
				ID:             "rw-yearly",
				Name:           "RW Tahunan",
				Price:          2_400_000,
				Discount:       400_000,
				Type:           "YEARLY",
				Level:          "RW",
				CoversChildren: true,
				Description:    "Langganan tahunan RW, menanggung seluruh RT di bawahnya",
				Features:       []string{"dashboard RW", "rekap RT", "tagihan terpusat"},
			},
			{
				ID:             "rw-lifetime",
				Name:           "RW Selamanya",
				Price:          15_000_000,
				Type:           "LIFETIME",
				Level:          "RW",
				CoversChildren: true,
				Description:    "Akses selamanya untuk RW dan seluruh RT di bawahnya",
				Features:       []string{"dashboard RW", "rekap RT", "tagihan terpusat"},
			},
		},
	}
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder wraps a fixed catalog, used by tests and tools.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) (*PlanCatalogHolder, error) {
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder, nil
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("config.plans")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/rukun")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RUKUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	cfg := DefaultPlanCatalog()
	if fromFile {
		var loaded PlanCatalog
		if err := v.UnmarshalKey("billing", &loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := validatePlanCatalog(cfg); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)

	if fromFile {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.UnmarshalKey("billing", &updated); err != nil {
				log.Warn("plan catalog reload failed", zap.Error(err))
				return
			}
			if err := validatePlanCatalog(updated); err != nil {
				log.Warn("invalid plan catalog ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan catalog reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("billing.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, plan := range cfg.Plans {
		id := strings.TrimSpace(plan.ID)
		if id == "" {
			return errors.New("billing.plans[].id is required")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("billing.plans: duplicate id %q", id)
		}
		seen[id] = struct{}{}
		switch strings.ToUpper(plan.Type) {
		case "MONTHLY", "YEARLY", "LIFETIME":
		default:
			return fmt.Errorf("billing.plans[%s]: unsupported type %q", id, plan.Type)
		}
		switch strings.ToUpper(plan.Level) {
		case "RT", "RW":
		default:
			return fmt.Errorf("billing.plans[%s]: unsupported level %q", id, plan.Level)
		}
		if plan.Price < 0 || plan.Discount < 0 {
			return fmt.Errorf("billing.plans[%s]: negative amount", id)
		}
	}
	return nil
}
