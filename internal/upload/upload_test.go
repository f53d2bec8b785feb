package upload

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedFilename(t *testing.T) {
	for _, name := range []string{"car.jpg", "CAR.JPEG", "a.b.png"} {
		assert.True(t, AllowedFilename(name), name)
	}
	for _, name := range []string{"car", "car.gif", "car.png.exe", ""} {
		assert.False(t, AllowedFilename(name), name)
	}
}

func TestCheckContent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	assert.NoError(t, CheckContent(buf.Bytes()))
	assert.NoError(t, CheckContent([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0}))
	assert.ErrorIs(t, CheckContent([]byte("just some text")), ErrInvalidFormat)
	assert.ErrorIs(t, CheckContent(nil), ErrInvalidFormat)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "my_car_photo.jpg", SanitizeFilename("my car photo.jpg"))
	assert.Equal(t, "photo.png", SanitizeFilename(`C:\Users\x\photo.png`))
	assert.Equal(t, "image", SanitizeFilename("../.."))
}

func TestSanitizeFilenameShortensLongNames(t *testing.T) {
	long := strings.Repeat("a", 200) + ".jpg"
	name := SanitizeFilename(long)
	assert.Len(t, name, maxNameBytes)
	assert.True(t, strings.HasSuffix(name, ".jpg"), name)
	assert.True(t, AllowedFilename(name))

	noExt := SanitizeFilename(strings.Repeat("b", 300))
	assert.Len(t, noExt, maxNameBytes)

	// Annotated images prefix a second id onto the stored name.
	annotated := strings.Repeat("f", 32) + "_" + StoredName(long)
	assert.LessOrEqual(t, len(annotated), 255)
}

func TestStoredNameIsUnique(t *testing.T) {
	a, b := StoredName("car.jpg"), StoredName("car.jpg")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "_car.jpg"))
	assert.Len(t, strings.TrimSuffix(a, "_car.jpg"), 32)
}
