package imap

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datimsync/pkg/syncerr"
)

const header = "DATIM_Indicator_Category,DATIM_Indicator_ID,DATIM_Disag_ID,DATIM_Disag_Name,Operation,MOH_Indicator_ID,MOH_Indicator_Name,MOH_Disag_ID,MOH_Disag_Name\n"

func load(t *testing.T, body string) *Imap {
	t.Helper()
	m, err := LoadCSV(strings.NewReader(body), "UG", "DATIM-MOH-UG", "FY17")
	require.NoError(t, err)
	return m
}

func TestLoadAndValidate(t *testing.T) {
	m := load(t, header+
		"HTS_TST,HTS_TST_N_MOH,d1,<15,ADD,MOH1,Tested,md1,Under 15\n"+
		"TX_NEW,TX_NEW_N_MOH,d2,15+,ADD,MOH2,New,md2,15 plus\n")
	require.Len(t, m.Rows, 2)
	assert.Equal(t, "TX_NEW", m.Rows[1]["DATIM_Indicator_Category"])
	assert.NoError(t, m.Validate(nil))
}

func TestValidate_MissingField(t *testing.T) {
	m := load(t, "DATIM_Indicator_Category,DATIM_Indicator_ID\nHTS_TST,X\n")
	err := m.Validate(nil)
	var ve *syncerr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "DATIM_Disag_ID", ve.Field)
	assert.Equal(t, 1, ve.Row)
	assert.Contains(t, err.Error(), "Missing field 'DATIM_Disag_ID' on row 1")
}

func TestValidate_PeriodAndEmpty(t *testing.T) {
	m := load(t, header+"a,b,c,d,e,f,g,h,i\n")
	m.Period = "FY99"
	assert.Equal(t, syncerr.CodeValidation, syncerr.Code(m.Validate(nil)))

	m = load(t, header)
	assert.Error(t, m.Validate(nil))

	_, err := LoadCSV(strings.NewReader(""), "", "", "")
	assert.Equal(t, syncerr.CodeValidation, syncerr.Code(err))
}

func TestDisplay(t *testing.T) {
	m := load(t, header+"a,b,c,d,e,f,g,h,i\n")
	var buf bytes.Buffer
	require.NoError(t, m.Display(&buf, ParseFormat("csv")))
	assert.Equal(t, header+"a,b,c,d,e,f,g,h,i\n", buf.String())

	buf.Reset()
	require.NoError(t, m.Display(&buf, ParseFormat("json")))
	assert.Contains(t, buf.String(), `"MOH_Disag_Name":"i"`)
	assert.Equal(t, FormatCSV, ParseFormat("xml"))
}

func TestDiff(t *testing.T) {
	a := load(t, header+"a,b,c,d,e,f,g,h,i\nj,k,l,m,n,o,p,q,r\n")
	b := load(t, header+"j,k,l,m,n,o,p,q,r\ns,t,u,v,w,x,y,z,0\n")
	d := Diff(a, b)
	require.Len(t, d.Added, 1)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "s", d.Added[0]["DATIM_Indicator_Category"])
	assert.Equal(t, "a", d.Removed[0]["DATIM_Indicator_Category"])
	assert.True(t, Diff(a, a).Empty())
}
