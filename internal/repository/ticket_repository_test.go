package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticketdesk/internal/domain"
)

const testTicketID = "6f1c1d3e-0b1a-4c55-9a55-1f0f4a1c2b3d"

var ticketRowColumns = []string{"id", "title", "description", "priority", "status", "created_at", "updated_at"}

func newMockRepository(t *testing.T) (TicketRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewTicketRepository(mock), mock
}

func TestTicketRepository_Create(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tickets (title, description, priority, status)")).
		WithArgs("Printer jammed", "Paper stuck in tray 2", "MEDIUM", "OPEN").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(testTicketID, now, now))

	ticket := &domain.Ticket{
		Title:       "Printer jammed",
		Description: "Paper stuck in tray 2",
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	assert.Equal(t, testTicketID, ticket.ID)
	assert.Equal(t, now, ticket.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tickets WHERE id=$1")).
		WithArgs(testTicketID).
		WillReturnRows(pgxmock.NewRows(ticketRowColumns).
			AddRow(testTicketID, "Printer jammed", "", "HIGH", "IN_PROGRESS", now, now))

	ticket, err := repo.GetByID(context.Background(), testTicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tickets WHERE id=$1")).
		WithArgs(testTicketID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), testTicketID)
	require.ErrorIs(t, err, ErrTicketNotFound)

	// malformed ids never reach the database
	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrTicketNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_Query(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()
	status := domain.TicketStatusOpen
	search := "printer"

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM tickets WHERE 1=1 AND status=$1 AND (title ILIKE $2 ESCAPE '\' OR description ILIKE $2 ESCAPE '\')`)).
		WithArgs("OPEN", "%printer%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY title ASC, id ASC LIMIT 10 OFFSET 20")).
		WithArgs("OPEN", "%printer%").
		WillReturnRows(pgxmock.NewRows(ticketRowColumns).
			AddRow(testTicketID, "Printer jammed", "", "LOW", "OPEN", now, now))

	tickets, total, err := repo.Query(context.Background(), TicketFilter{
		Status:    &status,
		Search:    &search,
		SortBy:    "title",
		SortOrder: domain.SortAsc,
		Limit:     10,
		Offset:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, tickets, 1)
	assert.Equal(t, "Printer jammed", tickets[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_QueryRejectsUnknownSortColumn(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tickets WHERE 1=1")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 10 OFFSET 0")).
		WillReturnRows(pgxmock.NewRows(ticketRowColumns))

	tickets, total, err := repo.Query(context.Background(), TicketFilter{SortBy: "id; DROP TABLE tickets"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tickets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_QueryEscapesSearchWildcards(t *testing.T) {
	repo, mock := newMockRepository(t)
	search := ` 50%_off\ `

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM tickets")).
		WithArgs(`%50\%\_off\\%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 10 OFFSET 0")).
		WithArgs(`%50\%\_off\\%`).
		WillReturnRows(pgxmock.NewRows(ticketRowColumns))

	_, _, err := repo.Query(context.Background(), TicketFilter{Search: &search})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_ListRecentByStatusDefaultsLimit(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status=$1 ORDER BY updated_at DESC LIMIT $2")).
		WithArgs("OPEN", 10).
		WillReturnRows(pgxmock.NewRows(ticketRowColumns))

	_, err := repo.ListRecentByStatus(context.Background(), domain.TicketStatusOpen, 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketRepository_Delete(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tickets WHERE id=$1")).
		WithArgs(testTicketID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, repo.Delete(context.Background(), testTicketID), ErrTicketNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
