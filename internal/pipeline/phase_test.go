package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipwayhq/slipway/internal/runtime"
)

func newPhaseFixture(failCommand string) (*phase, *fakeContainer) {
	ctr := &fakeContainer{
		id:          "yard",
		log:         &opLog{},
		failCommand: failCommand,
		toolVersion: "v22.1.0\n",
	}
	return newPhase(ctr), ctr
}

func TestPhaseCreateUser(t *testing.T) {
	p, ctr := newPhaseFixture("")

	user, err := p.CreateUser(t.Context(), "slipway")
	require.NoError(t, err)
	assert.Equal(t, runtime.Identity{UID: 1000, GID: 1000}, user)

	// Setup commands run before the drop, so without an identity.
	for _, spec := range ctr.execs {
		assert.Nil(t, spec.User, "command %q carried an identity", spec.Command)
	}
}

// Base images may ship the build user already. A useradd conflict is
// accepted as long as the account's identity resolves.
func TestPhaseCreateUserExists(t *testing.T) {
	p, _ := newPhaseFixture("useradd")

	user, err := p.CreateUser(t.Context(), "slipway")
	require.NoError(t, err)
	assert.Equal(t, runtime.Identity{UID: 1000, GID: 1000}, user)
}

func TestPhaseCreateUserUnresolvable(t *testing.T) {
	p, _ := newPhaseFixture("id -u")

	_, err := p.CreateUser(t.Context(), "slipway")
	require.ErrorIs(t, err, ErrCommandFailed)
}

func TestPhaseExecBeforeDrop(t *testing.T) {
	p, _ := newPhaseFixture("")

	_, err := p.Exec(t.Context(), runtime.ExecSpec{Command: "npm ci"})
	require.ErrorIs(t, err, ErrPrivilegesHeld)

	err = p.CopyTo(t.Context(), strings.NewReader(""), "/build")
	require.ErrorIs(t, err, ErrPrivilegesHeld)
}

func TestPhaseDropIsOneWay(t *testing.T) {
	p, ctr := newPhaseFixture("")
	p.Drop(runtime.Identity{UID: 1000, GID: 1000})

	_, err := p.CreateUser(t.Context(), "other")
	require.ErrorIs(t, err, ErrPrivilegesDropped)

	err = p.PrepareDir(t.Context(), "/build", runtime.Identity{UID: 1000, GID: 1000})
	require.ErrorIs(t, err, ErrPrivilegesDropped)

	result, err := p.Exec(t.Context(), runtime.ExecSpec{Command: "npm ci"})
	require.NoError(t, err)
	assert.Zero(t, result.ExitCode)

	last := ctr.execs[len(ctr.execs)-1]
	require.NotNil(t, last.User)
	assert.Equal(t, runtime.Identity{UID: 1000, GID: 1000}, *last.User)
}

func TestPhasePrepareDir(t *testing.T) {
	p, ctr := newPhaseFixture("")

	err := p.PrepareDir(t.Context(), "/build", runtime.Identity{UID: 1000, GID: 1000})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"yard: mkdir /build",
		"yard: chown 1000:1000 /build",
	}, ctr.log.snapshot())
}
