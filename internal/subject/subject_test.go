package subject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fathima-sithara/realtime-backplane/internal/subject"
)

func TestNames(t *testing.T) {
	n := subject.New("chat")

	assert.Equal(t, "chat", n.All())
	assert.Equal(t, "chat.conn.c1", n.Connection("c1"))
	assert.Equal(t, "chat.group.room42", n.Group("room42"))
	assert.Equal(t, "chat.user.u9", n.User("u9"))
	assert.Equal(t, "chat.groupmgmt", n.GroupManagement())
}

func TestNamesHubIsolation(t *testing.T) {
	a := subject.New("chat")
	b := subject.New("notifications")

	assert.NotEqual(t, a.All(), b.All())
	assert.NotEqual(t, a.Group("g"), b.Group("g"))
	assert.NotEqual(t, a.GroupManagement(), b.GroupManagement())
}
