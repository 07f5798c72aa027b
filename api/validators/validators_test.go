package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

type bidBody struct {
	Amount          decimal.Decimal  `json:"amount" validate:"money"`
	Threshold       *decimal.Decimal `json:"threshold" validate:"omitempty,money"`
	Currency        string           `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentSourceID string           `json:"paymentSourceId" validate:"required,max=255"`
}

func decode(t *testing.T, body string) (bidBody, error) {
	t.Helper()
	var dest bidBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func detailsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, _ := typed.Details().(map[string]string)
	return details
}

func TestDecodeJSONBodyAcceptsMoney(t *testing.T) {
	got, err := decode(t, `{"amount":"150.25","threshold":99,"currency":"USD","paymentSourceId":"pm_card"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("150.25")) || got.Threshold == nil {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestDecodeJSONBodyRejectsSubCentAmounts(t *testing.T) {
	_, err := decode(t, `{"amount":"10.005","threshold":"1.001","paymentSourceId":"pm_card"}`)
	details := detailsOf(t, err)
	for _, field := range []string{"amount", "threshold"} {
		if !strings.Contains(details[field], "two decimal places") {
			t.Fatalf("expected money message for %s, got %v", field, details)
		}
	}
}

func TestDecodeJSONBodyFieldMessages(t *testing.T) {
	_, err := decode(t, `{"amount":"10","currency":"US"}`)
	details := detailsOf(t, err)
	if details["paymentSourceId"] != "is required" {
		t.Fatalf("unexpected details %v", details)
	}
	if details["currency"] != "must be exactly 3 characters" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"amount":"1","paymentSourceId":"pm","bonus":true}`,
		"two objects":    `{"amount":"1","paymentSourceId":"pm"}{"amount":"2"}`,
		"not json":       `amount=1`,
		"amount garbage": `{"amount":"ten","paymentSourceId":"pm"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decode(t, body); err == nil {
				t.Fatal("expected error")
			} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("listingId", value)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "listingId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(withParam("nope"), "listingId"); err == nil {
		t.Fatal("expected error for malformed id")
	}
	if _, err := ParseUUIDParam(withParam(""), "listingId"); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&unread=1", nil)

	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected out of range error")
	}
	if v, err := ParseQueryInt(req, "missing", 25, 1, 100); err != nil || v != 25 {
		t.Fatalf("expected default, got %d (%v)", v, err)
	}
	if v, err := ParseQueryBool(req, "unread", false); err != nil || !v {
		t.Fatalf("expected true, got %v (%v)", v, err)
	}
	if got := SanitizeString("  hello there ", 5); got != "hello" {
		t.Fatalf("unexpected sanitize result %q", got)
	}
}

func TestSanitizeStringCountsCharacters(t *testing.T) {
	title := strings.Repeat("拍", 150)
	if got := SanitizeString(title, 200); got != title {
		t.Fatalf("expected 150 characters kept, got %d bytes", len(got))
	}
	got := SanitizeString(strings.Repeat("é", 201), 200)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != 200 {
		t.Fatalf("expected 200 valid characters, got %q", got)
	}
	if got := SanitizeString("ab🎉cd", 3); got != "ab🎉" {
		t.Fatalf("unexpected sanitize result %q", got)
	}
}
