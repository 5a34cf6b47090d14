package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/batch-sub-translator/internal/termmap"
)

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Translate(ctx context.Context, text string, contextText string) (string, error) {
	args := m.Called(ctx, text, contextText)
	return args.String(0), args.Error(1)
}

func TestWithTermMap_PrependsMatchedTerms(t *testing.T) {
	next := &mockTranslator{}
	next.On("Translate", mock.Anything, "Okarun, run!",
		"Terminology (always translate these terms this way):\nOkarun => 奥卡轮\n\nBefore:\nHey").
		Return("奥卡轮，快跑！", nil).Once()

	tr := WithTermMap(next, termmap.TermMap{"Okarun": "奥卡轮", "Momo": "桃"})
	got, err := tr.Translate(context.Background(), "Okarun, run!", "Before:\nHey")
	require.NoError(t, err)
	assert.Equal(t, "奥卡轮，快跑！", got)
	next.AssertExpectations(t)
}

func TestWithTermMap_NoMatchKeepsContext(t *testing.T) {
	next := &mockTranslator{}
	next.On("Translate", mock.Anything, "Hello", "").Return("你好", nil).Once()

	tr := WithTermMap(next, termmap.TermMap{"Okarun": "奥卡轮"})
	_, err := tr.Translate(context.Background(), "Hello", "")
	require.NoError(t, err)
	next.AssertExpectations(t)
}

func TestWithTermMap_EmptyMap(t *testing.T) {
	next := &mockTranslator{}
	assert.Same(t, next, WithTermMap(next, nil))
}

func TestWithBackground(t *testing.T) {
	next := &mockTranslator{}
	next.On("Translate", mock.Anything, "Hello", "About the material:\nShow Title: Dandadan\n\nBefore:\nHi").
		Return("你好", nil).Once()
	next.On("Translate", mock.Anything, "Bye", "About the material:\nShow Title: Dandadan").
		Return("再见", nil).Once()

	tr := WithBackground(next, " Show Title: Dandadan\n")
	_, err := tr.Translate(context.Background(), "Hello", "Before:\nHi")
	require.NoError(t, err)
	_, err = tr.Translate(context.Background(), "Bye", "")
	require.NoError(t, err)
	next.AssertExpectations(t)

	assert.Same(t, next, WithBackground(next, "  "))
}

func TestWithBackground_InsideTermMap(t *testing.T) {
	next := &mockTranslator{}
	next.On("Translate", mock.Anything, "Okarun!",
		"About the material:\nShow Title: Dandadan\n\nTerminology (always translate these terms this way):\nOkarun => 奥卡轮").
		Return("奥卡轮！", nil).Once()

	tr := WithTermMap(WithBackground(next, "Show Title: Dandadan"), termmap.TermMap{"Okarun": "奥卡轮"})
	_, err := tr.Translate(context.Background(), "Okarun!", "")
	require.NoError(t, err)
	next.AssertExpectations(t)
}
