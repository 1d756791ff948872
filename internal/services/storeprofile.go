package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
)

// StoreProfile carries the merchant facts the agent answers from:
// shipping, exchange and payment policy plus brand voice notes.
type StoreProfile struct {
	BrandName      string   `yaml:"brand_name"`
	Tone           string   `yaml:"tone"`
	ShippingInfo   string   `yaml:"shipping_info"`
	ExchangePolicy string   `yaml:"exchange_policy"`
	PaymentOptions []string `yaml:"payment_options"`
	FAQ            []struct {
		Question string `yaml:"question"`
		Answer   string `yaml:"answer"`
	} `yaml:"faq"`
}

// LoadStoreProfile reads the profile YAML named by STORE_PROFILE_PATH.
// A missing path yields an empty profile so the pipeline still runs.
func LoadStoreProfile(log *logger.Logger) (*StoreProfile, error) {
	path := strings.TrimSpace(os.Getenv("STORE_PROFILE_PATH"))
	if path == "" {
		log.Warn("STORE_PROFILE_PATH not set, agent runs without store facts")
		return &StoreProfile{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store profile: %w", err)
	}

	var profile StoreProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse store profile: %w", err)
	}
	return &profile, nil
}

// PromptSection renders the profile as a system-prompt block. Empty
// fields are skipped.
func (p *StoreProfile) PromptSection() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	if p.BrandName != "" {
		fmt.Fprintf(&b, "Mağaza: %s\n", p.BrandName)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "Üslup: %s\n", p.Tone)
	}
	if p.ShippingInfo != "" {
		fmt.Fprintf(&b, "Kargo: %s\n", p.ShippingInfo)
	}
	if p.ExchangePolicy != "" {
		fmt.Fprintf(&b, "Değişim/iade: %s\n", p.ExchangePolicy)
	}
	if len(p.PaymentOptions) > 0 {
		fmt.Fprintf(&b, "Ödeme seçenekleri: %s\n", strings.Join(p.PaymentOptions, ", "))
	}
	for _, f := range p.FAQ {
		if f.Question == "" || f.Answer == "" {
			continue
		}
		fmt.Fprintf(&b, "SSS — %s: %s\n", f.Question, f.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}
