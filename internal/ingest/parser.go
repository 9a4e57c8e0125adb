package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/spend-dashboard/internal/models"
)

const DefaultCurrency = "USD"

// SpendReport is the parser output plus the totals shown in upload responses.
type SpendReport struct {
	Records        []models.SpendRecord
	TotalAmount    decimal.Decimal
	TotalCampaigns int
}

type parseState int

const (
	seekingCampaign parseState = iota
	haveCampaign
	haveCampaignAndDate
	numStates
)

func (s parseState) String() string {
	switch s {
	case seekingCampaign:
		return "SEEKING_CAMPAIGN"
	case haveCampaign:
		return "HAVE_CAMPAIGN"
	case haveCampaignAndDate:
		return "HAVE_CAMPAIGN_AND_DATE"
	}
	return "UNKNOWN"
}

type lineKind int

const (
	kindOther lineKind = iota
	kindCampaign
	kindDate
	kindSpend
	kindCombined
	numKinds
)

var (
	campaignRe = regexp.MustCompile(`(?i)^\s*campaign\s*:\s*(.*?)\s*$`)
	dateRe     = regexp.MustCompile(`(?i)^\s*date\s*:\s*(\d{4}-\d{2}-\d{2})\s*$`)
	spendRe    = regexp.MustCompile(`(?i)^\s*spend\s*:\s*\$\s*([0-9][0-9,]*(?:\.[0-9]*)?)\s*$`)

	// "Campaign <name> <date> $<amount>" and "Campaign <name> $<amount> <date>".
	combinedDateFirstRe   = regexp.MustCompile(`(?i)^\s*campaign[:\s]+(.+?)[:\s]+(\d{4}-\d{2}-\d{2})[:\s]+\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*$`)
	combinedAmountFirstRe = regexp.MustCompile(`(?i)^\s*campaign[:\s]+(.+?)[:\s]+\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)[:\s]+(?:on\s+)?(\d{4}-\d{2}-\d{2})\s*$`)
)

// token is one classified line. Fields unused by the kind stay zero.
type token struct {
	kind   lineKind
	name   string
	date   string
	amount string
}

// classify tries the combined forms first: a campaign line carrying both a
// date and a $amount is one record, anything else after "Campaign:" is a name.
func classify(line string) token {
	if m := combinedDateFirstRe.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[1]) != "" {
		return token{kind: kindCombined, name: strings.TrimSpace(m[1]), date: m[2], amount: m[3]}
	}
	if m := combinedAmountFirstRe.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[1]) != "" {
		return token{kind: kindCombined, name: strings.TrimSpace(m[1]), amount: m[2], date: m[3]}
	}
	if m := campaignRe.FindStringSubmatch(line); m != nil && strings.TrimSpace(m[1]) != "" {
		return token{kind: kindCampaign, name: strings.TrimSpace(m[1])}
	}
	if m := dateRe.FindStringSubmatch(line); m != nil {
		return token{kind: kindDate, date: m[1]}
	}
	if m := spendRe.FindStringSubmatch(line); m != nil {
		return token{kind: kindSpend, amount: m[1]}
	}
	return token{kind: kindOther}
}

// spendScanner holds the single pending record and the emitted output.
type spendScanner struct {
	state   parseState
	pending models.SpendRecord
	out     []models.SpendRecord
}

// transition handles one token and returns the next state.
type transition func(s *spendScanner, tok token) parseState

// transitions[state][kind]; a nil entry leaves the state and output untouched.
var transitions [numStates][numKinds]transition

func init() {
	for st := parseState(0); st < numStates; st++ {
		transitions[st][kindCampaign] = startCampaign
		transitions[st][kindCombined] = emitCombined
	}
	transitions[haveCampaign][kindDate] = setDate
	transitions[haveCampaignAndDate][kindDate] = setDate
	transitions[haveCampaignAndDate][kindSpend] = emitSpend
}

func startCampaign(s *spendScanner, tok token) parseState {
	s.pending = models.SpendRecord{CampaignName: tok.name, Currency: DefaultCurrency}
	return haveCampaign
}

func setDate(s *spendScanner, tok token) parseState {
	d, err := time.Parse(models.DateLayout, tok.date)
	if err != nil {
		return s.state
	}
	s.pending.Date = d
	return haveCampaignAndDate
}

func emitSpend(s *spendScanner, tok token) parseState {
	amt, ok := parseAmount(tok.amount)
	if !ok {
		return s.state
	}
	rec := s.pending
	rec.Amount = amt
	s.out = append(s.out, rec)
	s.pending = models.SpendRecord{}
	return seekingCampaign
}

func emitCombined(s *spendScanner, tok token) parseState {
	d, err := time.Parse(models.DateLayout, tok.date)
	if err != nil {
		return s.state
	}
	amt, ok := parseAmount(tok.amount)
	if !ok {
		return s.state
	}
	s.out = append(s.out, models.SpendRecord{
		CampaignName: tok.name,
		Amount:       amt,
		Date:         d,
		Currency:     DefaultCurrency,
	})
	return s.state
}

func (s *spendScanner) step(line string) {
	tok := classify(line)
	if fn := transitions[s.state][tok.kind]; fn != nil {
		s.state = fn(s, tok)
	}
}

// ParseSpend turns extracted report text into spend records. Lines that match no
// pattern, or match in the wrong state, are skipped; it never fails.
func ParseSpend(text string) SpendReport {
	s := &spendScanner{state: seekingCampaign}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		s.step(line)
	}
	return SpendReport{Records: s.out, TotalAmount: models.SumAmounts(s.out), TotalCampaigns: len(s.out)}
}

// parseAmount strips thousands separators and parses a non-negative decimal.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.HasSuffix(s, ".") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
