// Package bootstrap provides startup-time initialization routines
// such as seeding tenant fixtures into the in-memory store.
package bootstrap

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/sungwon/wa-dispatch/internal/storage"
)

// Seeder accepts fixture records. storage.Memory implements it.
type Seeder interface {
	PutTemplate(tenant, subjectID string, t storage.Template)
	PutUser(tenant string, u storage.User)
	PutPrices(tenant, subjectID, dialCode string, prices map[string]float64)
}

// Fixtures is the seed file layout.
type Fixtures struct {
	Tenants []TenantFixture `mapstructure:"tenants"`
}

type TenantFixture struct {
	Name     string           `mapstructure:"name"`
	Subjects []SubjectFixture `mapstructure:"subjects"`
}

type SubjectFixture struct {
	ID                     string  `mapstructure:"id"`
	Balance                float64 `mapstructure:"balance"`
	BusinessWhatsappNumber string  `mapstructure:"business_whatsapp_number"`
	CallbackEndpoint       string  `mapstructure:"callback_endpoint"`
	CallbackAuthToken      string  `mapstructure:"callback_auth_token"`

	Templates []TemplateFixture `mapstructure:"templates"`
	// Prices maps dial code to category to unit price.
	Prices map[string]map[string]float64 `mapstructure:"prices"`
}

type TemplateFixture struct {
	Name       string `mapstructure:"name"`
	TemplateID string `mapstructure:"template_id"`
	Status     string `mapstructure:"status"`
	Type       string `mapstructure:"type"`
	HeaderType string `mapstructure:"header_type"`
	Header     string `mapstructure:"header"`
	Message    string `mapstructure:"message"`
	Footer     string `mapstructure:"footer"`
	SubType    string `mapstructure:"sub_type"`
}

// LoadFixtures reads a YAML or JSON seed file.
func LoadFixtures(path string) (*Fixtures, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f Fixtures
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal seed file: %w", err)
	}
	return &f, nil
}

// Seed writes every fixture into s. Seeding the same fixtures twice
// overwrites the earlier records.
func Seed(s Seeder, f *Fixtures, log zerolog.Logger) error {
	for _, t := range f.Tenants {
		if t.Name == "" {
			return fmt.Errorf("seed: tenant without name")
		}
		for _, sub := range t.Subjects {
			if !storage.ValidSubjectID(sub.ID) {
				return fmt.Errorf("seed: tenant %s: invalid subject id %q", t.Name, sub.ID)
			}

			s.PutUser(t.Name, storage.User{
				ID:                     sub.ID,
				Balance:                sub.Balance,
				BusinessWhatsappNumber: sub.BusinessWhatsappNumber,
				Callback: storage.CallbackConfig{
					Endpoint:  sub.CallbackEndpoint,
					AuthToken: sub.CallbackAuthToken,
				},
			})
			for _, tpl := range sub.Templates {
				s.PutTemplate(t.Name, sub.ID, storage.Template{
					Name:       tpl.Name,
					TemplateID: tpl.TemplateID,
					Status:     tpl.Status,
					Type:       tpl.Type,
					Category:   tpl.Type,
					HeaderType: tpl.HeaderType,
					Header:     tpl.Header,
					Message:    tpl.Message,
					Footer:     tpl.Footer,
					SubType:    tpl.SubType,
				})
			}
			for dialCode, prices := range sub.Prices {
				s.PutPrices(t.Name, sub.ID, dialCode, prices)
			}

			log.Info().
				Str("tenant", t.Name).
				Str("subject_id", sub.ID).
				Int("templates", len(sub.Templates)).
				Msg("subject seeded")
		}
	}
	return nil
}
