package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceProviderGrantsOnProbe(t *testing.T) {
	calls := 0
	p := NewDeviceProvider(func() bool {
		calls++
		return true
	})

	// No grant before the explicit request, even with a device present.
	assert.False(t, p.HasRecordingPermission())
	assert.True(t, p.RequestRecordingPermission())
	assert.True(t, p.HasRecordingPermission())
	assert.True(t, p.DeviceSupportsRecording())
	assert.Equal(t, 2, calls)
}

func TestDeviceProviderDeniesWithoutDevice(t *testing.T) {
	p := NewDeviceProvider(func() bool { return false })

	assert.False(t, p.RequestRecordingPermission())
	assert.False(t, p.HasRecordingPermission())
	assert.False(t, p.DeviceSupportsRecording())
}

func TestStatic(t *testing.T) {
	granted := Static{Granted: true, Supported: true}
	assert.True(t, granted.HasRecordingPermission())
	assert.True(t, granted.RequestRecordingPermission())

	denied := Static{Granted: false, Supported: true}
	assert.False(t, denied.RequestRecordingPermission())
	assert.True(t, denied.DeviceSupportsRecording())
}
