package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Hello World", CleanString("  Hello World \n"))
	assert.Equal(t, "hello world", CleanString("  Hello World \n", true))
}

func TestCleanStrings(t *testing.T) {
	tests := []struct {
		name string
		list []string
		want []string
	}{
		{name: "nil", list: nil, want: []string{}},
		{name: "blank items", list: []string{" ", "uniform", ""}, want: []string{"uniform"}},
		{name: "repeats keep first", list: []string{"uniform", " books", "uniform ", "books", "transport"}, want: []string{"uniform", "books", "transport"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanStrings(tt.list))
		})
	}
}

func TestUCWords(t *testing.T) {
	assert.Equal(t, "1st Class", UCWords("1st class"))
	assert.Equal(t, "Nursery", UCWords("nursery"))
	assert.Equal(t, "", UCWords(""))
}

func TestUCFirst(t *testing.T) {
	assert.Equal(t, "Uniform", UCFirst("uniform"))
	assert.Equal(t, "Éducation", UCFirst("éducation"))
	assert.Equal(t, "", UCFirst(""))
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{name: "empty", items: nil, size: 2, want: nil},
		{name: "invalid size", items: []int{1, 2}, size: 0, want: nil},
		{name: "exact", items: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "remainder", items: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
		{name: "bigger size", items: []int{1, 2}, size: 100, want: [][]int{{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.items, tt.size))
		})
	}
}

func TestOrderBy(t *testing.T) {
	columns := map[string]string{"name": "u.name", "created_at": "u.created_at"}
	tests := []struct {
		name      string
		orderings []DBOrdering
		want      string
	}{
		{name: "fallback", want: "u.created_at DESC"},
		{name: "unknown fields dropped", orderings: []DBOrdering{{Field: "password_hash", Ascending: true}}, want: "u.created_at DESC"},
		{
			name:      "several",
			orderings: []DBOrdering{{Field: "name", Ascending: true}, {Field: "bogus"}, {Field: "created_at"}},
			want:      "u.name ASC, u.created_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrderBy(tt.orderings, columns, "u.created_at DESC"))
		})
	}
}

func TestReimbursementSettings(t *testing.T) {
	assert.True(t, ReimbursementSettings{ApprovalLevel: ApprovalSingle}.IsSingleLevel())
	assert.False(t, ReimbursementSettings{ApprovalLevel: "triple"}.IsSingleLevel())
	assert.Equal(t, "state_admin", ReimbursementSettings{}.ApproverRole())
	assert.Equal(t, "central_admin", ReimbursementSettings{PaymentApprover: "central"}.ApproverRole())
}

func TestNewTestConfig(t *testing.T) {
	conf := NewTestConfig()
	assert.True(t, conf.TestMode)
	assert.Equal(t, ApprovalDual, conf.Reimbursement.ApprovalLevel)
	assert.Len(t, conf.School.ClassLevels, 15)

	label, ok := conf.School.ClassLabel(3)
	assert.True(t, ok)
	assert.Equal(t, "1st", label)
	_, ok = conf.School.ClassLabel(42)
	assert.False(t, ok)

	assert.Equal(t, "noreply@localhost", conf.DefaultFromEmail.Address)
	assert.False(t, conf.Redis.CacheEnabled())
}

func TestIsAcademicYear(t *testing.T) {
	assert.True(t, IsAcademicYear("2024_25"))
	assert.False(t, IsAcademicYear("2024-25"))
	assert.False(t, IsAcademicYear("24_25"))
	assert.True(t, IsPaymentHead(CentralHead))
	assert.False(t, IsPaymentHead("district_head"))
}
