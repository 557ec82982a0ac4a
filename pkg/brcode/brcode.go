// Package brcode builds static PIX "copia e cola" payloads following the
// EMV merchant-presented QR layout adopted by the Brazilian Central Bank.
package brcode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	pixGUI          = "br.gov.bcb.pix"
	payloadFormat   = "01"
	categoryCode    = "0000"
	currencyBRL     = "986"
	countryCode     = "BR"
	crcFieldPrefix  = "6304"
	maxFieldLength  = 99
	maxAmountLength = 13

	MaxNameLength        = 25
	MaxCityLength        = 15
	MaxReferenceIDLength = 25
)

// Field ids.
const (
	idPayloadFormat   = "00"
	idMerchantAccount = "26"
	idCategoryCode    = "52"
	idCurrency        = "53"
	idAmount          = "54"
	idCountry         = "58"
	idMerchantName    = "59"
	idMerchantCity    = "60"
	idAdditionalData  = "62"

	idAccountGUI = "00"
	idAccountKey = "01"
	idTxID       = "05"
)

var (
	ErrInvalidKey         = errors.New("brcode: pix key is required")
	ErrInvalidAmount      = errors.New("brcode: amount must be positive")
	ErrInvalidName        = errors.New("brcode: merchant name is required")
	ErrInvalidCity        = errors.New("brcode: merchant city is required")
	ErrInvalidReferenceID = errors.New("brcode: reference id must be 1-25 alphanumeric characters")
	ErrFieldTooLong       = errors.New("brcode: field value exceeds 99 bytes")
	ErrInvalidChecksum    = errors.New("brcode: checksum mismatch")
)

// Params holds the inputs for a single charge payload.
type Params struct {
	Key         string
	Name        string
	City        string
	Amount      decimal.Decimal // reais
	ReferenceID string          // optional, generated when empty
}

// Code is a built payload together with the reference id embedded in it.
type Code struct {
	Payload     string
	ReferenceID string
}

// Build assembles the payload and appends its CRC-16 checksum.
// The output is fully determined by Params once ReferenceID is set.
func Build(p Params) (*Code, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return nil, ErrInvalidKey
	}

	amount := p.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amountStr := amount.StringFixed(2)
	if len(amountStr) > maxAmountLength {
		return nil, fmt.Errorf("%w: %s has more than %d characters", ErrInvalidAmount, amountStr, maxAmountLength)
	}

	name := Normalize(p.Name, MaxNameLength)
	if name == "" {
		return nil, ErrInvalidName
	}
	city := Normalize(p.City, MaxCityLength)
	if city == "" {
		return nil, ErrInvalidCity
	}

	ref := p.ReferenceID
	if ref == "" {
		ref = NewReferenceID()
	} else if !ValidReferenceID(ref) {
		return nil, ErrInvalidReferenceID
	}

	account := &encoder{}
	account.field(idAccountGUI, pixGUI)
	account.field(idAccountKey, key)

	additional := &encoder{}
	additional.field(idTxID, ref)

	e := &encoder{}
	e.field(idPayloadFormat, payloadFormat)
	e.nested(idMerchantAccount, account)
	e.field(idCategoryCode, categoryCode)
	e.field(idCurrency, currencyBRL)
	e.field(idAmount, amountStr)
	e.field(idCountry, countryCode)
	e.field(idMerchantName, name)
	e.field(idMerchantCity, city)
	e.nested(idAdditionalData, additional)
	if e.err != nil {
		return nil, e.err
	}

	payload := e.b.String() + crcFieldPrefix
	return &Code{
		Payload:     payload + Checksum(payload),
		ReferenceID: ref,
	}, nil
}

// Verify checks that payload ends with a CRC field matching its content.
func Verify(payload string) error {
	n := len(payload)
	if n < len(crcFieldPrefix)+4 || payload[n-8:n-4] != crcFieldPrefix {
		return fmt.Errorf("%w: missing crc field", ErrInvalidChecksum)
	}
	want := Checksum(payload[:n-4])
	if !strings.EqualFold(payload[n-4:], want) {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidChecksum, payload[n-4:], want)
	}
	return nil
}

// NewReferenceID returns a random 25-character alphanumeric id.
func NewReferenceID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:MaxReferenceIDLength]
}

// ValidReferenceID reports whether ref fits the additional-data txid rules.
func ValidReferenceID(ref string) bool {
	if ref == "" || len(ref) > MaxReferenceIDLength {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

type encoder struct {
	b   strings.Builder
	err error
}

func (e *encoder) field(id, value string) {
	if e.err != nil {
		return
	}
	if len(value) > maxFieldLength {
		e.err = fmt.Errorf("%w: id %s has %d bytes", ErrFieldTooLong, id, len(value))
		return
	}
	fmt.Fprintf(&e.b, "%s%02d%s", id, len(value), value)
}

func (e *encoder) nested(id string, inner *encoder) {
	if inner.err != nil {
		if e.err == nil {
			e.err = inner.err
		}
		return
	}
	e.field(id, inner.b.String())
}
