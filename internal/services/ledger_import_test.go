package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleflow/internal/core"
	"settleflow/internal/log"
	"settleflow/internal/storage/memory"
)

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	imp := NewLedgerImporter(st, time.UTC, log.Discard())

	in := "\ufeffDate,Amount,Description,Category\n" +
		"2023-01-05,-1000,Injection mould,tooling\n" +
		"\n" +
		"2023-02-01T10:00:00Z,\"-1,234.50\",Freight,shipping\n"
	n, err := imp.ImportCSV(ctx, core.Capex, "capex.csv", strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := st.LedgerRange(ctx, core.Capex, date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Injection mould", recs[0].Description)
	assert.Equal(t, "tooling", recs[0].Category)
	assert.True(t, recs[1].Amount.Equal(amount("-1234.50")), "amount %s", recs[1].Amount)

	opex, err := st.LedgerRange(ctx, core.Opex, date(2023, 1, 1), date(2023, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, opex)
}

func TestImportCSVRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name     string
		class    core.ExpenditureClass
		in       string
		wantLine int
		wantIs   error
	}{
		{name: "empty", class: core.Opex, in: "", wantIs: core.ErrParse},
		{name: "header only", class: core.Opex, in: "date,amount,description\n", wantIs: core.ErrParse},
		{name: "missing column", class: core.Opex, in: "date,description\n2023-01-01,x\n", wantLine: 1, wantIs: core.ErrParse},
		{name: "bad date", class: core.Opex, in: "date,amount,description\n01/02/2023,1,x\n", wantLine: 2, wantIs: core.ErrParse},
		{name: "bad amount", class: core.Opex, in: "date,amount,description\n2023-01-01,1,ok\n2023-01-02,€5,x\n", wantLine: 3, wantIs: core.ErrParse},
		{name: "empty description", class: core.Opex, in: "date,amount,description\n2023-01-01,1,\n", wantLine: 2, wantIs: core.ErrParse},
		{name: "bad class", class: "marketplace", in: "date,amount,description\n2023-01-01,1,x\n", wantIs: core.ErrInvalidClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			imp := NewLedgerImporter(st, nil, log.Discard())
			n, err := imp.ImportCSV(context.Background(), tt.class, "in.csv", strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, tt.wantIs)

			var pe *core.ParseError
			if errors.As(err, &pe) {
				assert.Equal(t, tt.wantLine, pe.Line)
				assert.Equal(t, "in.csv", pe.File)
			}
			recs, _ := st.LedgerRange(context.Background(), core.Opex, date(2000, 1, 1), date(2100, 1, 1))
			assert.Empty(t, recs, "nothing is written for a rejected file")
		})
	}
}
