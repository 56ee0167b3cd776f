package payroll

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/validator"
)

func date(s string) time.Time {
	d, _ := validator.IsValidDate(s)
	return d
}

func TestPeriod_Contains(t *testing.T) {
	p := Period{Start: date("2024-03-01"), End: date("2024-03-31")}

	assert.True(t, p.Valid())
	assert.True(t, p.Contains(date("2024-03-01")))
	assert.True(t, p.Contains(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(date("2024-04-01")))
	assert.False(t, Period{Start: date("2024-03-02"), End: date("2024-03-01")}.Valid())
}

func TestBracket_Contains(t *testing.T) {
	to := decimal.NewFromInt(1000)
	b := Bracket{From: decimal.NewFromInt(500), To: &to, Rate: decimal.RequireFromString("0.1")}

	assert.True(t, b.Contains(decimal.NewFromInt(500)))
	assert.True(t, b.Contains(decimal.RequireFromString("999.99")))
	assert.False(t, b.Contains(decimal.NewFromInt(1000)))
	assert.False(t, b.Contains(decimal.NewFromInt(499)))

	open := Bracket{From: decimal.NewFromInt(1000)}
	assert.True(t, open.Contains(decimal.NewFromInt(1_000_000)))
}

func TestRun_CloneIsDeep(t *testing.T) {
	mgr := "mgr-1"
	run := &Run{
		ID:               "run-1",
		EmployeeIDs:      []string{"e1"},
		Lines:            []Line{{EmployeeID: "e1", Items: []LineItem{{Name: "base"}}}},
		PayrollManagerID: &mgr,
	}

	c := run.Clone()
	c.EmployeeIDs[0] = "changed"
	c.Lines[0].Items[0].Name = "changed"
	*c.PayrollManagerID = "changed"

	assert.Equal(t, "e1", run.EmployeeIDs[0])
	assert.Equal(t, "base", run.Lines[0].Items[0].Name)
	assert.Equal(t, "mgr-1", *run.PayrollManagerID)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in   string
		want Event
		ok   bool
	}{
		{"approve", EventApprove, true},
		{"request-finance-review", EventRequestFinanceReview, true},
		{"edit-period", EventEditPeriod, true},
		{"create", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEvent(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.Equal(t, s == StatusPaid, s.IsTerminal(), string(s))
	}
}

func TestConfigEntity_Applicability(t *testing.T) {
	emp := "e1"
	eff := date("2024-03-15")
	c := ConfigEntity{EmployeeID: &emp, EffectiveDate: &eff, Status: ConfigDraft}
	p := Period{Start: date("2024-03-01"), End: date("2024-03-31")}

	assert.True(t, c.IsEditable())
	assert.True(t, c.AppliesTo("e1"))
	assert.False(t, c.AppliesTo("e2"))
	assert.True(t, c.EffectiveIn(p))
	assert.False(t, c.EffectiveIn(Period{Start: date("2024-04-01"), End: date("2024-04-30")}))

	global := ConfigEntity{Status: ConfigApproved}
	assert.True(t, global.AppliesTo("anyone"))
	assert.False(t, global.IsEditable())
}

func TestCreateConfigRequest_Validate(t *testing.T) {
	emp := "e1"
	to := decimal.NewFromInt(1000)
	tests := []struct {
		name    string
		req     CreateConfigRequest
		wantErr string
	}{
		{
			name: "pay grade ok",
			req:  CreateConfigRequest{Kind: "pay_grade", Name: "Senior", Code: "G5", Amount: decimal.NewFromInt(8000)},
		},
		{
			name:    "pay grade without code",
			req:     CreateConfigRequest{Kind: "PAY_GRADE", Name: "Senior", Amount: decimal.NewFromInt(8000)},
			wantErr: "code",
		},
		{
			name:    "negative allowance",
			req:     CreateConfigRequest{Kind: "ALLOWANCE", Name: "Transport", Amount: decimal.NewFromInt(-1)},
			wantErr: "amount",
		},
		{
			name: "gap in tax brackets",
			req: CreateConfigRequest{Kind: "TAX_RULE", Name: "Income tax", Brackets: []BracketRequest{
				{From: decimal.Zero, To: &to, Rate: decimal.Zero},
				{From: decimal.NewFromInt(2000), Rate: decimal.RequireFromString("0.1")},
			}},
			wantErr: "brackets",
		},
		{
			name:    "signing bonus needs date",
			req:     CreateConfigRequest{Kind: "SIGNING_BONUS", Name: "Welcome", EmployeeID: &emp, Amount: decimal.NewFromInt(500)},
			wantErr: "effective_date",
		},
		{
			name:    "overtime policy needs multiplier",
			req:     CreateConfigRequest{Kind: "POLICY", Name: "OT", PolicyType: "OVERTIME"},
			wantErr: "rate",
		},
		{
			name:    "unknown kind",
			req:     CreateConfigRequest{Kind: "BONUS", Name: "x"},
			wantErr: "kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs.ToMap(), tt.wantErr)
		})
	}
}

func TestCreateConfigRequest_ToEntity(t *testing.T) {
	req := CreateConfigRequest{Kind: "policy", Name: " Late fee ", PolicyType: "lateness", Amount: decimal.NewFromInt(2), EffectiveDate: "2024-03-01"}
	c := req.ToEntity("u1")

	assert.Equal(t, KindPolicy, c.Kind)
	assert.Equal(t, PolicyLateness, c.PolicyType)
	assert.Equal(t, "Late fee", c.Name)
	assert.Equal(t, ConfigDraft, c.Status)
	assert.Equal(t, "u1", c.CreatedBy)
	require.NotNil(t, c.EffectiveDate)
	assert.Equal(t, date("2024-03-01"), *c.EffectiveDate)
}

func TestTransitionRequest_ValidateFor(t *testing.T) {
	req := TransitionRequest{ExpectedVersion: 0}
	assert.Error(t, req.ValidateFor(EventApprove))

	req = TransitionRequest{ExpectedVersion: 3}
	assert.NoError(t, req.ValidateFor(EventApprove))
	assert.Error(t, req.ValidateFor(EventEditPeriod))

	req.PeriodStart, req.PeriodEnd = "2024-03-01", "2024-03-31"
	assert.NoError(t, req.ValidateFor(EventEditPeriod))
	assert.Equal(t, date("2024-03-31"), req.Period().End)
}
