package triage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOrdering(t *testing.T) {
	assert.True(t, CategoryResuscitation.MoreUrgentThan(CategoryEmergency))
	assert.True(t, CategoryEmergency.MoreUrgentThan(CategoryNonUrgent))
	assert.False(t, CategoryNonUrgent.MoreUrgentThan(CategoryNonUrgent))
	assert.False(t, CategorySemiUrgent.MoreUrgentThan(CategoryUrgent))
}

func TestCompareCategories(t *testing.T) {
	assert.Equal(t, -1, CompareCategories(CategoryResuscitation, CategoryEmergency))
	assert.Equal(t, 1, CompareCategories(CategoryNonUrgent, CategoryUrgent))
	assert.Equal(t, 0, CompareCategories(CategoryUrgent, CategoryUrgent))
}

func TestMostUrgent(t *testing.T) {
	assert.Equal(t, CategoryResuscitation, MostUrgent(CategoryResuscitation, CategoryNonUrgent))
	assert.Equal(t, CategoryResuscitation, MostUrgent(CategoryNonUrgent, CategoryResuscitation))
	assert.Equal(t, CategoryUrgent, MostUrgent(CategoryUrgent, CategoryUrgent))
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
		ok   bool
	}{
		{"resuscitation", CategoryResuscitation, true},
		{"Emergency", CategoryEmergency, true},
		{"  urgent  ", CategoryUrgent, true},
		{"semi_urgent", CategorySemiUrgent, true},
		{"semi-urgent", CategorySemiUrgent, true},
		{"Semi Urgent", CategorySemiUrgent, true},
		{"non_urgent", CategoryNonUrgent, true},
		{"critical", 0, false},
		{"", 0, false},
		{"category 6", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseCategory(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryResuscitation.Valid())
	assert.True(t, CategoryNonUrgent.Valid())
	assert.False(t, Category(0).Valid())
	assert.False(t, Category(6).Valid())
	assert.False(t, Category(-1).Valid())
}

func TestCategoryJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(CategoryEmergency)
	require.NoError(t, err)
	assert.Equal(t, `"emergency"`, string(data))

	var c Category
	require.NoError(t, json.Unmarshal([]byte(`"urgent"`), &c))
	assert.Equal(t, CategoryUrgent, c)

	// Numeric index form is accepted too.
	require.NoError(t, json.Unmarshal([]byte(`1`), &c))
	assert.Equal(t, CategoryResuscitation, c)

	assert.Error(t, json.Unmarshal([]byte(`"category 6"`), &c))
	assert.Error(t, json.Unmarshal([]byte(`9`), &c))

	_, err = json.Marshal(Category(7))
	assert.Error(t, err)
}
