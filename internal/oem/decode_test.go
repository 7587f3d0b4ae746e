package oem

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/issgo/internal/ephemeris"
)

func loadSample(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/iss_sample.xml")
	require.NoError(t, err)
	return data
}

func TestDecode(t *testing.T) {
	doc, err := Decode(strings.NewReader(string(loadSample(t))))
	require.NoError(t, err)

	wantHeader := Header{CreationDate: "2024-044T19:41:51.092Z", Originator: "JSC"}
	if diff := cmp.Diff(wantHeader, doc.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "ISS", doc.Metadata.ObjectName)
	assert.Equal(t, "EME2000", doc.Metadata.RefFrame)
	assert.Equal(t, "UTC", doc.Metadata.TimeSystem)
	assert.Equal(t, []string{"Units are in kg and m^2", "MASS=461235.00", "DRAG_AREA=1964.62"}, doc.Comments)

	require.Len(t, doc.StateVectors, 5)

	first := doc.StateVectors[0]
	require.NotNil(t, first.Epoch)
	assert.Equal(t, "2024-045T12:00:00.000Z", *first.Epoch)
	assert.Equal(t, ephemeris.Quantity{Value: -4665.0, Units: "km"}, *first.X)
	assert.Equal(t, ephemeris.Quantity{Value: 3.0, Units: "km/s"}, *first.ZDot)

	speed, err := ephemeris.Speed(first)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, speed, 1e-12)
}

func TestDecodeKeepsAbsentFieldsNil(t *testing.T) {
	doc, err := Decode(strings.NewReader(string(loadSample(t))))
	require.NoError(t, err)

	assert.Nil(t, doc.StateVectors[2].Epoch, "missing EPOCH must stay absent")

	fourth := doc.StateVectors[3]
	assert.Nil(t, fourth.XDot, "missing X_DOT must stay absent")
	require.NotNil(t, fourth.X, "an explicit zero is present")
	assert.Equal(t, 0.0, fourth.X.Value)

	_, err = ephemeris.Speed(fourth)
	assert.ErrorIs(t, err, ephemeris.ErrMissingField)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not xml", "ISS (ZARYA)\n1 25544U 98067A"},
		{"wrong root", "<oem><header/></oem>"},
		{"non-numeric coordinate", `<ndm><oem><body><segment><data><stateVector><X units="km">north</X></stateVector></data></segment></body></oem></ndm>`},
		{"truncated", "<ndm><oem><header>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDecodeEmptyData(t *testing.T) {
	doc, err := Decode(strings.NewReader("<ndm><oem><body><segment><data></data></segment></body></oem></ndm>"))
	require.NoError(t, err)
	assert.Empty(t, doc.StateVectors)
	assert.Empty(t, doc.Comments)
}

func TestNewDatasetEpochRange(t *testing.T) {
	doc, err := Decode(strings.NewReader(string(loadSample(t))))
	require.NoError(t, err)

	fetched := time.Date(2024, 2, 14, 20, 0, 0, 0, time.UTC)
	ds := NewDataset("test", fetched, doc)

	// The epoch-less sample and the one with a truncated epoch are ignored.
	assert.Equal(t, time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC), ds.EpochRange.Min)
	assert.Equal(t, time.Date(2024, 2, 14, 12, 12, 0, 0, time.UTC), ds.EpochRange.Max)
	assert.Equal(t, fetched, ds.FetchedAt)
	assert.Len(t, ds.StateVectors(), 5)
}

func TestDatasetStateVectorsNil(t *testing.T) {
	var ds *Dataset
	assert.Nil(t, ds.StateVectors())
	assert.Nil(t, (&Dataset{}).StateVectors())
}
