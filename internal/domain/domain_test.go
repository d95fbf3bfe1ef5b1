package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobIDString(t *testing.T) {
	assert.Equal(t, "notify:42", NotifyJobID("42").String())
	assert.Equal(t, "sla:42", SLAJobID("42").String())
	assert.NotEqual(t, NotifyJobID("42").String(), SLAJobID("42").String())
}

func TestTicketQueryCanonical(t *testing.T) {
	status := TicketStatusOpen
	search := "vpn & wifi"
	page := 2

	q := TicketQuery{Search: &search, Status: &status, Page: &page}
	assert.Equal(t, "page=2&search=vpn+%26+wifi&status=OPEN", q.Canonical())
	assert.Empty(t, TicketQuery{}.Canonical())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 3, TotalPages(25, 10))
	assert.Equal(t, 2, TotalPages(20, 10))
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 0, TotalPages(5, 0))
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, TicketStatusResolved.Valid())
	assert.False(t, TicketStatus("CLOSED").Valid())
	assert.True(t, TicketPriorityLow.Valid())
	assert.False(t, TicketPriority("URGENT").Valid())
}
