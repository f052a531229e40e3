package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestAttempt(t *testing.T) {
	assert.Equal(t, 1, Attempt(nil))
	assert.Equal(t, 1, Attempt(amqp.Table{}))
	assert.Equal(t, 3, Attempt(amqp.Table{HeaderAttempt: int32(3)}))
	assert.Equal(t, 4, Attempt(amqp.Table{HeaderAttempt: int64(4)}))
	assert.Equal(t, 1, Attempt(amqp.Table{HeaderAttempt: "x"}))
}

func TestChannelBeforeConnect(t *testing.T) {
	c := &Client{}
	_, err := c.Channel()
	assert.Error(t, err)
}
