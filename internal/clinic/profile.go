// Package clinic holds the clinic profile: opening slots, contact details and
// down payment instructions shown to patients.
package clinic

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"

	"github.com/wolfman30/clinic-booking/internal/slots"
)

// PaymentMethod is one way a patient can settle the down payment.
type PaymentMethod struct {
	Code  string `toml:"code" json:"code"`   // GCASH, PAYMAYA, COUNTER
	Label string `toml:"label" json:"label"` // quick reply title
	// Instructions may contain {amount}, replaced with the formatted peso amount.
	Instructions string `toml:"instructions" json:"instructions"`
}

// Profile describes one clinic.
type Profile struct {
	Name           string          `toml:"name"`
	Address        string          `toml:"address"`
	Phone          string          `toml:"phone"`
	Email          string          `toml:"email"`
	Timezone       string          `toml:"timezone"`
	Hours          []string        `toml:"hours"`
	PaymentMethods []PaymentMethod `toml:"payment_methods"`

	slots    []slots.Clock
	location *time.Location
}

// DefaultProfile returns the built-in clinic profile.
func DefaultProfile() *Profile {
	p := &Profile{
		Name:     "Jaylon Dental Clinic",
		Address:  "Stall 13 Bldg. 06 Public Market, Makilala, Philippines",
		Phone:    "+639950027408",
		Email:    "jaylondentalclinic.makilala@gmail.com",
		Timezone: "Asia/Manila",
		Hours:    []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"},
		PaymentMethods: []PaymentMethod{
			{
				Code:         "GCASH",
				Label:        "GCash",
				Instructions: "📱 GCASH PAYMENT\n\n💰 Amount: {amount}\n📞 Send to: 0912 345 6789\n👤 Name: Jaylon Dental Clinic",
			},
			{
				Code:         "PAYMAYA",
				Label:        "PayMaya",
				Instructions: "💳 PAYMAYA PAYMENT\n\n💰 Amount: {amount}\n📞 Send to: 0912 345 6789\n👤 Name: Jaylon Dental Clinic",
			},
			{
				Code:         "COUNTER",
				Label:        "Over the Counter",
				Instructions: "🏥 OVER THE COUNTER\n\n💰 Amount: {amount}\n📍 Pay directly at:\nJaylon Dental Clinic\nStall 13 Bldg. 06 Public Market, Makilala",
			},
		},
	}
	if err := p.normalize(); err != nil {
		panic(err)
	}
	return p
}

// LoadProfile reads a TOML profile. An empty path yields DefaultProfile.
// Fields missing from the file keep their default values.
func LoadProfile(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clinic: read profile: %w", err)
	}
	return ParseProfile(string(raw))
}

// ParseProfile decodes a TOML document over the defaults.
func ParseProfile(doc string) (*Profile, error) {
	p := DefaultProfile()
	p.slots, p.location = nil, nil
	md, err := toml.Decode(doc, p)
	if err != nil {
		return nil, fmt.Errorf("clinic: decode profile: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("clinic: unknown profile keys: %v", undecoded)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) normalize() error {
	if len(p.Hours) == 0 {
		return errors.New("clinic: profile needs at least one hour")
	}
	clocks := make([]slots.Clock, 0, len(p.Hours))
	seen := make(map[slots.Clock]struct{}, len(p.Hours))
	for _, h := range p.Hours {
		c, err := slots.ParseClock(h)
		if err != nil {
			return fmt.Errorf("clinic: hours: %w", err)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("clinic: duplicate hour %s", c.Canonical())
		}
		if len(clocks) > 0 && !clocks[len(clocks)-1].Before(c) {
			return fmt.Errorf("clinic: hours must be ascending at %s", c.Canonical())
		}
		seen[c] = struct{}{}
		clocks = append(clocks, c)
	}

	tz := p.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("clinic: timezone %q: %w", tz, err)
	}

	for i := range p.PaymentMethods {
		p.PaymentMethods[i].Code = strings.ToUpper(strings.TrimSpace(p.PaymentMethods[i].Code))
		if p.PaymentMethods[i].Code == "" {
			return errors.New("clinic: payment method without code")
		}
	}

	p.slots = clocks
	p.location = loc
	return nil
}

// Slots returns the canonical slot list in ascending order.
func (p *Profile) Slots() []slots.Clock {
	return append([]slots.Clock(nil), p.slots...)
}

// Location returns the clinic timezone.
func (p *Profile) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// PaymentMethod looks up a method by code, case-insensitively.
func (p *Profile) PaymentMethod(code string) (PaymentMethod, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, m := range p.PaymentMethods {
		if m.Code == code {
			return m, true
		}
	}
	return PaymentMethod{}, false
}

// PaymentInstructions renders a method's instructions for the amount.
func (p *Profile) PaymentInstructions(code string, amountCents int64) string {
	m, ok := p.PaymentMethod(code)
	if !ok || m.Instructions == "" {
		return "Payment details: " + FormatPeso(amountCents)
	}
	return strings.ReplaceAll(m.Instructions, "{amount}", FormatPeso(amountCents))
}

// ContactText is the reply to the "Contact us" menu item.
func (p *Profile) ContactText() string {
	var b strings.Builder
	b.WriteString("📍 " + p.Name)
	if p.Address != "" {
		b.WriteString("\n" + p.Address)
	}
	if p.Phone != "" {
		b.WriteString("\n📞 " + p.Phone)
	}
	if p.Email != "" {
		b.WriteString("\n📧 " + p.Email)
	}
	return b.String()
}

// FormatPeso renders centavos as "₱1,234.50".
func FormatPeso(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("%s₱%s.%02d", sign, grouped.String(), cents%100)
}
