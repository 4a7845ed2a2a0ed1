package notify_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealdrop/mealdrop/internal/notify"
	"github.com/mealdrop/mealdrop/internal/order"
	"github.com/mealdrop/mealdrop/internal/push"
	"github.com/mealdrop/mealdrop/internal/realtime"
	"github.com/mealdrop/mealdrop/internal/user"
)

// fakeBroadcaster records socket emissions as "kind/target/event" strings.
type fakeBroadcaster struct {
	emissions []string
	lastData  interface{}
}

func (f *fakeBroadcaster) EmitToUser(userID, event string, data interface{}) bool {
	f.emissions = append(f.emissions, fmt.Sprintf("user/%s/%s", userID, event))
	f.lastData = data
	return true
}

func (f *fakeBroadcaster) EmitToRole(role user.Role, event string, data interface{}) {
	f.emissions = append(f.emissions, fmt.Sprintf("role/%s/%s", role, event))
	f.lastData = data
}

func (f *fakeBroadcaster) EmitToOrder(orderID, event string, data interface{}) {
	f.emissions = append(f.emissions, fmt.Sprintf("order/%s/%s", orderID, event))
	f.lastData = data
}

// fakePusher records push dispatches as "kind/target/eventType" strings.
type fakePusher struct {
	dispatches []string
	lastData   push.Payload
}

func (f *fakePusher) SendToUsers(_ context.Context, userIDs []string, eventType string, data push.Payload) (push.Result, error) {
	for _, id := range userIDs {
		f.dispatches = append(f.dispatches, fmt.Sprintf("user/%s/%s", id, eventType))
	}
	f.lastData = data
	return push.Result{SuccessCount: len(userIDs)}, nil
}

func (f *fakePusher) SendToRole(_ context.Context, role user.Role, eventType string, data push.Payload) (push.Result, error) {
	f.dispatches = append(f.dispatches, fmt.Sprintf("role/%s/%s", role, eventType))
	f.lastData = data
	return push.Result{SuccessCount: 1}, nil
}

func newEmitter(t *testing.T) (*notify.Emitter, *fakeBroadcaster, *fakePusher) {
	t.Helper()

	users := user.NewInMemoryRepository()
	users.Put(&user.User{ID: "usr_customer", Name: "Lindiwe", Role: user.RoleCustomer})
	users.Put(&user.User{ID: "usr_agent", Name: "Thabo", Role: user.RoleAgent})

	broadcaster := &fakeBroadcaster{}
	pusher := &fakePusher{}
	emitter := notify.NewEmitter(broadcaster, pusher, user.NewService(users), zerolog.Nop())
	return emitter, broadcaster, pusher
}

func testOrder(agentID string) *order.Order {
	return &order.Order{
		ID:          "ord_1",
		OrderNumber: "MD-0A1B2C3D",
		Status:      order.StatusPlaced,
		CustomerID:  "usr_customer",
		AgentID:     agentID,
		Items:       []order.Item{{Name: "Margherita", Quantity: 2, Price: 95}},
		TotalAmount: 190,
	}
}

func TestEmitter_OrderCreated(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderCreated(context.Background(), testOrder(""))
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"role/admin/" + realtime.EventOrderNew,
		"order/ord_1/" + realtime.EventOrderNew,
	}, broadcaster.emissions)

	assert.Equal(t, []string{"role/admin/" + push.EventOrderNew}, pusher.dispatches)
}

func TestEmitter_OrderAssigned(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderAssigned(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"user/usr_agent/" + realtime.EventOrderAssigned,
		"user/usr_customer/" + realtime.EventOrderAssigned,
		"order/ord_1/" + realtime.EventOrderAssigned,
		"role/admin/" + realtime.EventOrderAssigned,
	}, broadcaster.emissions)

	assert.Equal(t, []string{"user/usr_agent/" + push.EventOrderAssigned}, pusher.dispatches)
}

func TestEmitter_OrderReady(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderReady(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	assert.Equal(t, []string{"order/ord_1/" + realtime.EventOrderStatus}, broadcaster.emissions)
	assert.Equal(t, []string{"user/usr_customer/" + push.EventOrderReady}, pusher.dispatches)
}

func TestEmitter_OutForDelivery(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderOutForDelivery(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"user/usr_customer/" + realtime.EventDeliveryStatus,
		"order/ord_1/" + realtime.EventDeliveryStatus,
		"role/admin/" + realtime.EventDeliveryStatus,
	}, broadcaster.emissions)

	assert.Equal(t, []string{"user/usr_customer/" + push.EventOrderOutForDelivery}, pusher.dispatches)
}

func TestEmitter_OrderDelivered(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderDelivered(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"user/usr_customer/" + realtime.EventDeliveryStatus,
		"order/ord_1/" + realtime.EventDeliveryStatus,
		"role/admin/" + realtime.EventDeliveryStatus,
	}, broadcaster.emissions)

	assert.Equal(t, []string{"user/usr_customer/" + push.EventOrderDelivered}, pusher.dispatches)
}

func TestEmitter_CancelledHasNoPush(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderCancelled(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"user/usr_customer/" + realtime.EventOrderStatus,
		"role/admin/" + realtime.EventOrderStatus,
		"user/usr_agent/" + realtime.EventOrderStatus,
	}, broadcaster.emissions)

	assert.Empty(t, pusher.dispatches)
}

func TestEmitter_CancelledSkipsUnassignedAgent(t *testing.T) {
	emitter, broadcaster, _ := newEmitter(t)

	emitter.OrderCancelled(context.Background(), testOrder(""))

	assert.ElementsMatch(t, []string{
		"user/usr_customer/" + realtime.EventOrderStatus,
		"role/admin/" + realtime.EventOrderStatus,
	}, broadcaster.emissions)
}

func TestEmitter_PaymentUpdated(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	o := testOrder("")
	o.PaymentStatus = order.PaymentCaptured
	emitter.PaymentUpdated(context.Background(), o)
	emitter.Flush()

	assert.ElementsMatch(t, []string{
		"role/admin/" + realtime.EventPaymentStatus,
		"user/usr_customer/" + realtime.EventPaymentStatus,
	}, broadcaster.emissions)

	assert.Empty(t, pusher.dispatches)
}

func TestEmitter_PayloadEnrichment(t *testing.T) {
	emitter, broadcaster, pusher := newEmitter(t)

	emitter.OrderAssigned(context.Background(), testOrder("usr_agent"))
	emitter.Flush()

	payload, ok := broadcaster.lastData.(push.Payload)
	require.True(t, ok)
	assert.Equal(t, "ord_1", payload["orderId"])
	assert.Equal(t, "MD-0A1B2C3D", payload["orderNumber"])
	assert.Equal(t, "Thabo", payload["agentName"])
	assert.Equal(t, "Lindiwe", payload["customerName"])
	assert.Equal(t, 2, payload["itemCount"])

	assert.Equal(t, "Thabo", pusher.lastData["agentName"])
}

// gatedPusher blocks inside SendToUsers until released, so a test can prove
// the emitter returned while the dispatch was still in flight.
type gatedPusher struct {
	release chan struct{}
	sent    chan string
}

func (g *gatedPusher) SendToUsers(_ context.Context, userIDs []string, eventType string, _ push.Payload) (push.Result, error) {
	<-g.release
	g.sent <- eventType
	return push.Result{SuccessCount: len(userIDs)}, nil
}

func (g *gatedPusher) SendToRole(_ context.Context, _ user.Role, eventType string, _ push.Payload) (push.Result, error) {
	<-g.release
	g.sent <- eventType
	return push.Result{SuccessCount: 1}, nil
}

func TestEmitter_PushRunsOffTheEmitPath(t *testing.T) {
	pusher := &gatedPusher{release: make(chan struct{}), sent: make(chan string, 1)}
	emitter := notify.NewEmitter(&fakeBroadcaster{}, pusher, nil, zerolog.Nop())

	// With the pusher gated, a synchronous dispatch would never return.
	emitter.OrderReady(context.Background(), testOrder("usr_agent"))

	select {
	case <-pusher.sent:
		t.Fatal("push completed before the emitter returned")
	default:
	}

	close(pusher.release)
	emitter.Flush()

	select {
	case eventType := <-pusher.sent:
		assert.Equal(t, push.EventOrderReady, eventType)
	default:
		t.Fatal("push was never dispatched")
	}
}

func TestEmitter_NilPusherIsSafe(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	emitter := notify.NewEmitter(broadcaster, nil, nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		emitter.OrderCreated(context.Background(), testOrder(""))
	})
	assert.NotEmpty(t, broadcaster.emissions)
}

// panickyBroadcaster simulates a delivery-layer bug.
type panickyBroadcaster struct{}

func (panickyBroadcaster) EmitToUser(string, string, interface{}) bool { panic("boom") }
func (panickyBroadcaster) EmitToRole(user.Role, string, interface{})  { panic("boom") }
func (panickyBroadcaster) EmitToOrder(string, string, interface{})    { panic("boom") }

func TestEmitter_DeliveryPanicNeverPropagates(t *testing.T) {
	emitter := notify.NewEmitter(panickyBroadcaster{}, nil, nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		emitter.OrderDelivered(context.Background(), testOrder("usr_agent"))
	})
}
