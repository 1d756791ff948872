package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// PreambleService composes the system preamble the agent runs with:
// pretext, then the salutation block, then the product's own system text,
// joined by single blank lines with absent sections skipped.
type PreambleService interface {
	BuildSystemPreamble(ctx context.Context, product *types.Product, customer *types.CustomerProfile) (string, error)
}

type preambleService struct {
	log      *logger.Logger
	pretexts repos.PretextRepo
}

func NewPreambleService(log *logger.Logger, pretexts repos.PretextRepo) PreambleService {
	return &preambleService{
		log:      log.With("service", "PreambleService"),
		pretexts: pretexts,
	}
}

const unknownField = "bilinmiyor"

func (s *preambleService) BuildSystemPreamble(ctx context.Context, product *types.Product, customer *types.CustomerProfile) (string, error) {
	var sections []string

	pretext, err := s.resolvePretext(ctx, product)
	if err != nil {
		return "", err
	}
	if pretext != "" {
		sections = append(sections, pretext)
	}

	sections = append(sections, buildSalutationBlock(customer))

	if product != nil && strings.TrimSpace(product.SystemPrompt) != "" {
		sections = append(sections, strings.TrimSpace(product.SystemPrompt))
	}

	return strings.Join(sections, "\n\n"), nil
}

// resolvePretext walks the priority chain: the product's own pretext, the
// flagged default, the lowest-position row, then empty.
func (s *preambleService) resolvePretext(ctx context.Context, product *types.Product) (string, error) {
	if product != nil && product.PretextID != nil {
		p, err := s.pretexts.GetByID(ctx, nil, *product.PretextID)
		if err != nil {
			return "", fmt.Errorf("load product pretext: %w", err)
		}
		if p != nil {
			return strings.TrimSpace(p.Content), nil
		}
		s.log.Warn("product references missing pretext", "pretext_id", product.PretextID.String())
	}

	p, err := s.pretexts.GetDefault(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("load default pretext: %w", err)
	}
	if p != nil {
		return strings.TrimSpace(p.Content), nil
	}

	p, err = s.pretexts.GetFirst(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("load fallback pretext: %w", err)
	}
	if p != nil {
		return strings.TrimSpace(p.Content), nil
	}
	return "", nil
}

// buildSalutationBlock embeds whatever identity fields are known and
// instructs the model to pick the Turkish salutation itself. Gender is
// never inferred locally.
func buildSalutationBlock(customer *types.CustomerProfile) string {
	username, name, contactName := unknownField, unknownField, unknownField
	if customer != nil {
		if v := strings.TrimSpace(customer.Username); v != "" {
			username = v
		}
		if v := strings.TrimSpace(customer.Name); v != "" {
			name = v
		}
		if v := strings.TrimSpace(customer.ContactName); v != "" {
			contactName = v
		}
	}

	var b strings.Builder
	b.WriteString("Müşteri bilgileri:\n")
	fmt.Fprintf(&b, "- Kullanıcı adı: %s\n", username)
	fmt.Fprintf(&b, "- İsim: %s\n", name)
	fmt.Fprintf(&b, "- Kayıtlı isim: %s\n", contactName)
	b.WriteString("Hitap kuralı: müşterinin ismine bakarak Türkçe isim sezgisiyle cinsiyeti tahmin et. " +
		"Erkek ise \"abim\", kadın ise \"ablam\" diye hitap et. " +
		"İsim bilinmiyorsa veya emin değilsen \"efendim\" kullan.")
	return b.String()
}
