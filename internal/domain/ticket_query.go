package domain

import (
	"net/url"
	"strconv"
)

// Sortable ticket fields accepted by list queries.
var TicketSortFields = []string{"createdAt", "updatedAt", "title", "priority", "status"}

const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// TicketQuery describes a list request. Nil fields are absent.
type TicketQuery struct {
	Status    *TicketStatus   `json:"status" validate:"omitnil,oneof=OPEN IN_PROGRESS RESOLVED"`
	Priority  *TicketPriority `json:"priority" validate:"omitnil,oneof=LOW MEDIUM HIGH"`
	Search    *string         `json:"search" validate:"omitnil,max=500"`
	Page      *int            `json:"page" validate:"omitnil,min=1"`
	PageSize  *int            `json:"pageSize" validate:"omitnil,min=1,max=100"`
	SortBy    *string         `json:"sortBy"`
	SortOrder *string         `json:"sortOrder" validate:"omitnil,oneof=ASC DESC asc desc"`
}

// Values returns the non-absent fields keyed by their wire names.
func (q TicketQuery) Values() url.Values {
	v := url.Values{}
	if q.Status != nil {
		v.Set("status", string(*q.Status))
	}
	if q.Priority != nil {
		v.Set("priority", string(*q.Priority))
	}
	if q.Search != nil {
		v.Set("search", *q.Search)
	}
	if q.Page != nil {
		v.Set("page", strconv.Itoa(*q.Page))
	}
	if q.PageSize != nil {
		v.Set("pageSize", strconv.Itoa(*q.PageSize))
	}
	if q.SortBy != nil {
		v.Set("sortBy", *q.SortBy)
	}
	if q.SortOrder != nil {
		v.Set("sortOrder", *q.SortOrder)
	}
	return v
}

// Canonical encodes the query with keys in sorted order, so two equal
// queries always produce the same string.
func (q TicketQuery) Canonical() string {
	return q.Values().Encode()
}

// PageMeta describes pagination of a TicketPage.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// TicketPage is a single page of list results.
type TicketPage struct {
	Data []Ticket `json:"data"`
	Meta PageMeta `json:"meta"`
}

// TotalPages returns ceil(total/pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
