package spider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spider-home/internal/domain"
	"spider-home/internal/infra/spider"
)

func lastRequest(t *testing.T, fake *fakeSpider, method, path string) recordedRequest {
	t.Helper()
	requests := fake.requestList()
	for i := len(requests) - 1; i >= 0; i-- {
		if requests[i].Method == method && requests[i].Path == path {
			return requests[i]
		}
	}
	t.Fatalf("no %s %s request recorded", method, path)
	return recordedRequest{}
}

func submittedProperties(t *testing.T, body string) (map[string]any, map[string]map[string]any) {
	t.Helper()
	var device map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &device))

	props := make(map[string]map[string]any)
	for _, raw := range device["properties"].([]any) {
		p := raw.(map[string]any)
		props[p["id"].(string)] = p
	}
	return device, props
}

func TestClient_SetFanSpeedSubmitsFullDevice(t *testing.T) {
	fake := newFakeSpider(t)
	fake.devices = []map[string]any{thermostatJSON("t1", true)}
	clock := newFakeClock()
	client := newTestClient(fake, clock)

	ctx := context.Background()
	device, ok, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, client.SetFanSpeed(ctx, &device, "auto"))

	req := lastRequest(t, fake, http.MethodPut, "/api/devices/t1")
	body, props := submittedProperties(t, req.Body)

	assert.Equal(t, "hw-t1", body["hardwareId"])
	assert.Equal(t, "Auto", props["FanSpeed"]["status"])
	assert.Equal(t, true, props["FanSpeed"]["statusModified"])
	assert.Equal(t, "2024-03-14 15:09:26.000000", props["FanSpeed"]["statusLastUpdated"])
	for _, id := range []string{"AmbientTemperature", "SetpointTemperature", "OperationMode"} {
		assert.Equal(t, false, props[id]["statusModified"], id)
	}
	assert.Equal(t, float64(5), props["SetpointTemperature"]["min"])
	assert.Equal(t, 0.5, props["SetpointTemperature"]["step"])
	assert.Len(t, props["FanSpeed"]["scheduleChoices"], 3)

	assert.Equal(t, "Auto", device.FanSpeed())
}

func TestClient_SetTemperatureUpdatesCallerAndCache(t *testing.T) {
	fake := newFakeSpider(t)
	fake.devices = []map[string]any{thermostatJSON("t1", true)}
	client := newTestClient(fake, newFakeClock())

	ctx := context.Background()
	device, _, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, client.SetTemperature(ctx, &device, 22.5))

	_, props := submittedProperties(t, lastRequest(t, fake, http.MethodPut, "/api/devices/t1").Body)
	assert.Equal(t, "22.5", props["SetpointTemperature"]["status"])
	assert.Equal(t, 22.5, device.TargetTemperature())

	cached, _, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 22.5, cached.TargetTemperature())
	assert.Equal(t, 1, fake.countRequests(http.MethodGet, "/api/devices"), "no refetch after a write")
}

func TestClient_SetOperationModeCapitalizes(t *testing.T) {
	fake := newFakeSpider(t)
	fake.devices = []map[string]any{thermostatJSON("t1", true)}
	client := newTestClient(fake, newFakeClock())

	ctx := context.Background()
	device, _, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, client.SetOperationMode(ctx, &device, "cool"))

	_, props := submittedProperties(t, lastRequest(t, fake, http.MethodPut, "/api/devices/t1").Body)
	assert.Equal(t, "Cool", props["OperationMode"]["status"])
	assert.Equal(t, "Cool", device.OperationMode())
}

func TestClient_OfflineDeviceIsRejectedWithoutRequests(t *testing.T) {
	fake := newFakeSpider(t)
	client := newTestClient(fake, newFakeClock())

	var device domain.Device
	require.NoError(t, json.Unmarshal(mustJSON(t, thermostatJSON("t1", false)), &device))

	err := client.SetTemperature(context.Background(), &device, 19)

	assert.ErrorIs(t, err, spider.ErrDeviceOffline)
	assert.Empty(t, fake.requestList())
	assert.Zero(t, fake.grantCount())
	assert.Equal(t, 21.0, device.TargetTemperature())
}

func TestClient_MissingPropertyIsRejected(t *testing.T) {
	fake := newFakeSpider(t)
	client := newTestClient(fake, newFakeClock())

	raw := thermostatJSON("t1", true)
	raw["properties"] = []map[string]any{
		{"id": "AmbientTemperature", "status": "20.5"},
		{"id": "SetpointTemperature", "status": "21"},
	}
	var device domain.Device
	require.NoError(t, json.Unmarshal(mustJSON(t, raw), &device))

	err := client.SetFanSpeed(context.Background(), &device, "Auto")

	assert.ErrorIs(t, err, spider.ErrPropertyNotFound)
	assert.Empty(t, fake.requestList())
}

func TestClient_FailedSubmitLeavesDeviceUntouched(t *testing.T) {
	fake := newFakeSpider(t)
	fake.devices = []map[string]any{thermostatJSON("t1", true)}
	client := newTestClient(fake, newFakeClock())

	ctx := context.Background()
	device, _, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)
	before := mustJSON(t, device)

	fake.setFailure(http.MethodPut, "/api/devices/t1", http.StatusInternalServerError)
	err = client.SetTemperature(ctx, &device, 25)

	assert.ErrorIs(t, err, spider.ErrRemoteService)
	assert.JSONEq(t, string(before), string(mustJSON(t, device)))

	cached, _, err := client.GetThermostat(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 21.0, cached.TargetTemperature())
}

func TestClient_TurnPowerPlugOn(t *testing.T) {
	fake := newFakeSpider(t)
	fake.energy = []map[string]any{plugJSON("p1", true)}
	client := newTestClient(fake, newFakeClock())

	ctx := context.Background()
	require.NoError(t, client.TurnPowerPlugOn(ctx, "p1"))

	req := lastRequest(t, fake, http.MethodPut, "/api/devices/energy/smartPlugs/p1/switch")
	assert.JSONEq(t, "true", req.Body)

	plug, ok, err := client.GetPowerPlug(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, plug.IsSwitchedOn)

	require.NoError(t, client.TurnPowerPlugOff(ctx, "p1"))
	req = lastRequest(t, fake, http.MethodPut, "/api/devices/energy/smartPlugs/p1/switch")
	assert.JSONEq(t, "false", req.Body)

	plug, _, err = client.GetPowerPlug(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, plug.IsSwitchedOn)
	assert.Equal(t, 1, fake.countRequests(http.MethodGet, "/api/devices/energy/energyDevices"))
}

func TestClient_SwitchOfflineOrUnknownPlug(t *testing.T) {
	fake := newFakeSpider(t)
	fake.energy = []map[string]any{plugJSON("p1", false)}
	client := newTestClient(fake, newFakeClock())

	ctx := context.Background()
	err := client.TurnPowerPlugOn(ctx, "p1")
	assert.ErrorIs(t, err, spider.ErrDeviceOffline)

	err = client.TurnPowerPlugOff(ctx, "nope")
	assert.ErrorIs(t, err, spider.ErrDeviceNotFound)

	assert.Zero(t, fake.countRequests(http.MethodPut, "/api/devices/energy/smartPlugs/p1/switch"))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
