package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

const (
	eventID      = "8d5b0f62-93a1-4f0f-9a53-2f1c4b7d7a10"
	ticketTypeID = "0b7e8f1c-4a2d-4c55-8f0e-6d3a2b1c9e77"
)

func validOrder() model.NewOrder {
	return model.NewOrder{
		EventID: eventID,
		UserID:  7,
		Items: []model.OrderItemRequest{
			{TicketTypeID: ticketTypeID, Quantity: 2},
		},
		PaymentMethod: model.PaymentMethodMobileMoney,
		Buyer: model.Buyer{
			Name:  "Ada",
			Email: "ada@example.com",
			Phone: "+237 677 000 111",
		},
	}
}

func TestStruct_NewOrder(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(o *model.NewOrder)
		wantField string
	}{
		{name: "valid", mutate: func(o *model.NewOrder) {}},
		{name: "missing event", mutate: func(o *model.NewOrder) { o.EventID = "" }, wantField: "EventID"},
		{name: "event not uuid", mutate: func(o *model.NewOrder) { o.EventID = "evt-1" }, wantField: "EventID"},
		{name: "no items", mutate: func(o *model.NewOrder) { o.Items = nil }, wantField: "Items"},
		{name: "zero quantity", mutate: func(o *model.NewOrder) { o.Items[0].Quantity = 0 }, wantField: "Items[0].Quantity"},
		{name: "negative quantity", mutate: func(o *model.NewOrder) { o.Items[0].Quantity = -1 }, wantField: "Items[0].Quantity"},
		{name: "unknown payment method", mutate: func(o *model.NewOrder) { o.PaymentMethod = "barter" }, wantField: "PaymentMethod"},
		{name: "bad email", mutate: func(o *model.NewOrder) { o.Buyer.Email = "not-an-email" }, wantField: "Buyer.Email"},
		{name: "bad phone", mutate: func(o *model.NewOrder) { o.Buyer.Phone = "call me" }, wantField: "Buyer.Phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(&o)

			err := Struct(o)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			var verrs Errors
			require.True(t, errors.As(err, &verrs), "expected validation.Errors, got %v", err)

			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestStruct_NewEventRejectsDuplicateTicketNames(t *testing.T) {
	e := model.NewEvent{
		OrganizerID: 1,
		Title:       "Jazz night",
		StartsAt:    time.Now().Add(24 * time.Hour),
		TicketTypes: []model.NewTicketType{
			{Name: "VIP", Price: 1000, Stock: 5},
			{Name: "VIP", Price: 500, Stock: 10},
		},
	}

	err := Struct(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TicketTypes")

	e.TicketTypes[1].Name = "Regular"
	require.NoError(t, Struct(e))

	e.TicketTypes[1].Stock = -1
	require.Error(t, Struct(e))
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("677000111"))
	assert.True(t, IsValidPhone("+237677000111"))
	assert.True(t, IsValidPhone("+237 677 000 111"))
	assert.False(t, IsValidPhone("12345"))
	assert.False(t, IsValidPhone("67700011a"))
	assert.False(t, IsValidPhone(""))
}
