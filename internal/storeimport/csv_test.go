package storeimport_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/storeimport"
)

const vendorList = "\xef\xbb\xbfID,Name,Address,Lat,Lng,Geofence_Radius,WiFi_SSIDs,WIC_Authorized,Active\n" +
	"100,Kroger Maple Village,\"2641 Plymouth Rd, Ann Arbor\",42.2808,-83.7430,60,Kroger-Guest; Kroger-Staff ,Y,Y\n" +
	"101,Meijer Ann Arbor,3145 Ann Arbor-Saline Rd,42.2400,-83.7700,,,N,\n" +
	",No Id,,42.0,-83.0,,,,\n" +
	"103,Bad Coords,,abc,-83.0,,,,\n" +
	"104,Out Of Range,,95,-83.0,,,,\n" +
	"105,Bad Radius,,42.0,-83.0,-5,,,\n" +
	"106,Not A Number,,NaN,NaN,,,,\n" +
	"107,Infinite,,42.0,+Inf,,,,\n" +
	"108,NaN Radius,,42.0,-83.0,NaN,,,\n"

func TestParseCSV(t *testing.T) {
	res, err := storeimport.ParseCSV(strings.NewReader(vendorList), "mi-", "Independent")
	require.NoError(t, err)

	require.Len(t, res.Stores, 2)
	kroger := res.Stores[0]
	assert.Equal(t, "mi-100", kroger.ID)
	assert.Equal(t, "2641 Plymouth Rd, Ann Arbor", kroger.Address)
	assert.Equal(t, "Independent", kroger.Chain)
	assert.True(t, kroger.WICAuthorized)
	assert.True(t, kroger.Active)
	require.NotNil(t, kroger.Geofence)
	assert.Equal(t, domain.GeofenceCircle, kroger.Geofence.Type)
	assert.InDelta(t, 60, kroger.Geofence.Circle.RadiusMeters, 1e-9)
	require.Len(t, kroger.WiFiNetworks, 2)
	assert.Equal(t, "Kroger-Guest", kroger.WiFiNetworks[0].SSID)
	assert.Equal(t, "Kroger-Staff", kroger.WiFiNetworks[1].SSID)

	meijer := res.Stores[1]
	assert.Nil(t, meijer.Geofence)
	assert.Empty(t, meijer.WiFiNetworks)
	assert.False(t, meijer.WICAuthorized)
	assert.True(t, meijer.Active, "empty active column defaults to true")

	lines := make([]int, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		lines = append(lines, r.Line)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10}, lines)
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := storeimport.ParseCSV(strings.NewReader("id,name,lat\n1,a,42\n"), "", "")
	assert.ErrorContains(t, err, `"lng"`)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := storeimport.ParseCSV(strings.NewReader(""), "", "")
	assert.Error(t, err)
}
