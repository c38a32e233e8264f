package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample() []Record {
	return []Record{
		{RollNo: "24CS001", Name: "Aarav Kumar", Status: StatusPresent},
		{RollNo: "24CS002", Name: "Bhavya Nair", Status: StatusAbsent},
		{RollNo: "24CS003", Name: "Chitra Raman", Status: StatusLate},
		{RollNo: "24CS004", Name: "Dev Menon", Status: StatusOD, ODType: ODInternal},
		{RollNo: "24CS005", Name: "Esha Pillai", Status: StatusOD, ODType: ODExternal},
		{RollNo: "24CS006", Name: "Farhan Ali", Status: StatusOD},
	}
}

func TestCountsOf(t *testing.T) {
	c := CountsOf(sample())
	assert.Equal(t, Counts{Total: 6, Present: 1, Absent: 1, Late: 1, OD: 3, ODInternal: 1, ODExternal: 1}, c)
	assert.Equal(t, 17, c.Percent(c.Present))
	assert.Equal(t, 50, c.Percent(c.OD))
	assert.Equal(t, 0, Counts{}.Percent(3))
}

func TestFilter(t *testing.T) {
	recs := sample()

	assert.Len(t, Filter(recs, "", ""), 6)
	assert.Len(t, Filter(recs, StatusOD, ""), 3)

	byName := Filter(recs, "", "  nair ")
	if assert.Len(t, byName, 1) {
		assert.Equal(t, "24CS002", byName[0].RollNo)
	}

	byRoll := Filter(recs, StatusOD, "cs005")
	if assert.Len(t, byRoll, 1) {
		assert.Equal(t, "Esha Pillai", byRoll[0].Name)
	}

	assert.Empty(t, Filter(recs, StatusPresent, "bhavya"))
}
