package deriv

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// Outbound request shapes. The broker discriminates requests by which field
// is present, so each request gets its own struct.
type authorizeRequest struct {
	Authorize string `json:"authorize"`
}

type balanceRequest struct {
	Balance   int `json:"balance"`
	Subscribe int `json:"subscribe"`
}

type ticksRequest struct {
	Ticks     string `json:"ticks"`
	Subscribe int    `json:"subscribe"`
}

type contractsRequest struct {
	ProposalOpenContract int `json:"proposal_open_contract"`
	Subscribe            int `json:"subscribe"`
}

type proposalRequest struct {
	Proposal     int    `json:"proposal"`
	Amount       string `json:"amount"`
	Basis        string `json:"basis"`
	ContractType string `json:"contract_type"`
	Currency     string `json:"currency"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
	Symbol       string `json:"symbol"`
	Barrier      string `json:"barrier,omitempty"`
}

type buyRequest struct {
	Buy   string `json:"buy"`
	Price string `json:"price"`
}

func newProposalRequest(req domain.TradeRequest, currency string) proposalRequest {
	return proposalRequest{
		Proposal:     1,
		Amount:       req.Stake.StringFixed(2),
		Basis:        "stake",
		ContractType: string(req.ContractType),
		Currency:     currency,
		Duration:     req.DurationTicks,
		DurationUnit: "t",
		Symbol:       req.Symbol,
		Barrier:      req.Barrier,
	}
}

// apiError is the broker's error payload, checked before any msg_type
// handling.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authorizePayload struct {
	Balance  json.Number `json:"balance"`
	Currency string      `json:"currency"`
}

type balancePayload struct {
	Balance  json.Number `json:"balance"`
	Currency string      `json:"currency"`
}

// tickPayload keeps the quote as raw text: the last digit of the formatted
// quote is trade data for the digit strategies, and float64 formatting would
// not round-trip it.
type tickPayload struct {
	Symbol string      `json:"symbol"`
	Quote  json.Number `json:"quote"`
	Epoch  int64       `json:"epoch"`
}

type proposalPayload struct {
	ID       string      `json:"id"`
	AskPrice json.Number `json:"ask_price"`
}

type buyPayload struct {
	ContractID int64       `json:"contract_id"`
	BuyPrice   json.Number `json:"buy_price"`
}

type contractPayload struct {
	ContractID int64       `json:"contract_id"`
	IsSold     intBool     `json:"is_sold"`
	Profit     json.Number `json:"profit"`
}

// intBool accepts the broker's 0/1 and true/false spellings.
type intBool bool

func (b *intBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "1", "true":
		*b = true
	case "0", "false", "null":
		*b = false
	default:
		return fmt.Errorf("invalid bool value %q", data)
	}
	return nil
}

type envelope struct {
	MsgType              string            `json:"msg_type"`
	Error                *apiError         `json:"error"`
	Authorize            *authorizePayload `json:"authorize"`
	Balance              *balancePayload   `json:"balance"`
	Tick                 *tickPayload      `json:"tick"`
	Proposal             *proposalPayload  `json:"proposal"`
	Buy                  *buyPayload       `json:"buy"`
	ProposalOpenContract *contractPayload  `json:"proposal_open_contract"`
}

func isAuthError(code string) bool {
	return code == "InvalidToken" || code == "AuthorizationRequired"
}

func isRateLimitError(code string) bool {
	return code == "RateLimit" || code == "TooManyRequests"
}

func parseDecimal(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

// digitFromQuote extracts the last digit of the formatted quote text. The
// broker pads quotes to the instrument's pip size, so the final character is
// the digit the contract settles on.
func digitFromQuote(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	c := raw[len(raw)-1]
	if c < '0' || c > '9' {
		return 0, false
	}
	return int(c - '0'), true
}

// translate maps one decoded envelope to a domain event. Error payloads that
// alter connection state are handled by the caller; translate only sees the
// rest. A nil event with a nil error means the message carries nothing the
// session needs (e.g. an unknown msg_type).
func translate(env *envelope) (domain.Event, error) {
	if env.Error != nil {
		return domain.APIErrorEvent{Code: env.Error.Code, Message: env.Error.Message}, nil
	}

	switch env.MsgType {
	case "authorize":
		if env.Authorize == nil {
			return nil, fmt.Errorf("authorize message without payload: %w", ports.ErrMalformedMessage)
		}
		balance, err := parseDecimal(env.Authorize.Balance)
		if err != nil {
			return nil, fmt.Errorf("authorize balance %q: %w", env.Authorize.Balance, ports.ErrMalformedMessage)
		}
		return domain.AuthorizeEvent{Balance: balance, Currency: env.Authorize.Currency}, nil

	case "balance":
		if env.Balance == nil {
			return nil, fmt.Errorf("balance message without payload: %w", ports.ErrMalformedMessage)
		}
		balance, err := parseDecimal(env.Balance.Balance)
		if err != nil {
			return nil, fmt.Errorf("balance amount %q: %w", env.Balance.Balance, ports.ErrMalformedMessage)
		}
		return domain.BalanceEvent{Balance: balance, Currency: env.Balance.Currency}, nil

	case "tick":
		if env.Tick == nil {
			return nil, fmt.Errorf("tick message without payload: %w", ports.ErrMalformedMessage)
		}
		quote, err := env.Tick.Quote.Float64()
		if err != nil {
			return nil, fmt.Errorf("tick quote %q: %w", env.Tick.Quote, ports.ErrMalformedMessage)
		}
		raw := env.Tick.Quote.String()
		digit, hasDigit := digitFromQuote(raw)
		if !hasDigit {
			digit = -1
		}
		return domain.TickEvent{Tick: domain.Tick{
			Symbol: env.Tick.Symbol,
			Quote:  quote,
			Raw:    raw,
			Digit:  digit,
			Epoch:  time.Unix(env.Tick.Epoch, 0),
		}}, nil

	case "proposal":
		if env.Proposal == nil {
			return nil, fmt.Errorf("proposal message without payload: %w", ports.ErrMalformedMessage)
		}
		askPrice, err := parseDecimal(env.Proposal.AskPrice)
		if err != nil {
			return nil, fmt.Errorf("proposal ask_price %q: %w", env.Proposal.AskPrice, ports.ErrMalformedMessage)
		}
		return domain.ProposalEvent{ID: env.Proposal.ID, AskPrice: askPrice}, nil

	case "buy":
		if env.Buy == nil {
			return nil, fmt.Errorf("buy message without payload: %w", ports.ErrMalformedMessage)
		}
		buyPrice, err := parseDecimal(env.Buy.BuyPrice)
		if err != nil {
			return nil, fmt.Errorf("buy price %q: %w", env.Buy.BuyPrice, ports.ErrMalformedMessage)
		}
		return domain.BuyEvent{ContractID: env.Buy.ContractID, BuyPrice: buyPrice}, nil

	case "proposal_open_contract":
		if env.ProposalOpenContract == nil {
			return nil, fmt.Errorf("contract message without payload: %w", ports.ErrMalformedMessage)
		}
		profit, err := parseDecimal(env.ProposalOpenContract.Profit)
		if err != nil {
			return nil, fmt.Errorf("contract profit %q: %w", env.ProposalOpenContract.Profit, ports.ErrMalformedMessage)
		}
		return domain.ContractEvent{
			ContractID: env.ProposalOpenContract.ContractID,
			IsSold:     bool(env.ProposalOpenContract.IsSold),
			Profit:     profit,
		}, nil
	}

	// Unrecognized but well-formed message types carry nothing the session
	// needs (ping responses, forget acks).
	return nil, nil
}

func decode(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding broker message: %w", ports.ErrMalformedMessage)
	}
	return &env, nil
}
