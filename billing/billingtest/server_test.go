package billingtest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/billing/billingtest"
	"github.com/xraph/credits/types"
)

func TestRegisterIsStablePerDevice(t *testing.T) {
	srv := billingtest.New(billingtest.WithFreeGrant(2))
	defer srv.Close()
	c := billing.NewClient(srv.URL)
	ctx := context.Background()

	first, err := c.Register(ctx, "dev_a")
	require.NoError(t, err)
	again, err := c.Register(ctx, "dev_a")
	require.NoError(t, err)
	other, err := c.Register(ctx, "dev_b")
	require.NoError(t, err)

	assert.Equal(t, first.SubjectID, again.SubjectID)
	assert.NotEqual(t, first.AccessToken, again.AccessToken)
	assert.NotEqual(t, first.SubjectID, other.SubjectID)
	assert.Equal(t, types.NewBalance(2, 0), srv.BalanceOf(first.SubjectID))

	subject, ok := srv.SubjectFor("dev_a")
	assert.True(t, ok)
	assert.Equal(t, first.SubjectID, subject)
}

func TestGrantAndSubjectMismatch(t *testing.T) {
	srv := billingtest.New(billingtest.WithFreeGrant(0))
	defer srv.Close()
	c := billing.NewClient(srv.URL)
	ctx := context.Background()

	a, err := c.Register(ctx, "dev_a")
	require.NoError(t, err)
	srv.Grant(a.SubjectID, 3)

	reply, err := c.Consume(ctx, a.AccessToken, billing.ConsumeRequest{SubjectID: a.SubjectID, Action: "x", Cost: 2})
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(0, 1), reply.Balance)

	_, err = c.Consume(ctx, a.AccessToken, billing.ConsumeRequest{SubjectID: "someone-else", Action: "x", Cost: 1})
	rej, ok := billing.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, 403, rej.StatusCode)

	_, err = c.Balance(ctx, "forged")
	rej, ok = billing.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, 401, rej.StatusCode)
}
