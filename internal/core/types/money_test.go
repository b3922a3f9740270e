package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(MustMoney("0")))
	assert.NoError(t, ValidateAmount(MustMoney("1250.50")))
	assert.Error(t, ValidateAmount(MustMoney("-1")))
	assert.Error(t, ValidateAmount(MustMoney("10.005")))
}
