package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFinalPrice(t *testing.T) {
	cases := []struct {
		name                string
		price, vendor, site string
		want                string
	}{
		{"no discount", "1000", "0", "0", "1000"},
		{"both discounts", "1250", "10", "10", "1000"},
		{"rounded", "999", "7.5", "0", "924.08"},
		{"clamped", "500", "80", "40", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Variant{
				SellingPrice:    decimal.RequireFromString(tc.price),
				VendorDiscount:  decimal.RequireFromString(tc.vendor),
				WebsiteDiscount: decimal.RequireFromString(tc.site),
			}
			assert.True(t, decimal.RequireFromString(tc.want).Equal(v.FinalPrice()), "got %s", v.FinalPrice())
		})
	}
}

func TestRecomputeStatus(t *testing.T) {
	cases := []struct {
		name  string
		items []ItemStatus
		want  ItemStatus
	}{
		{"least advanced open item", []ItemStatus{ItemPackaging, ItemConfirmed}, ItemConfirmed},
		{"terminal items ignored while others move", []ItemStatus{ItemCancelled, ItemInTransit}, ItemInTransit},
		{"partial delivery", []ItemStatus{ItemDelivered, ItemCancelled}, ItemDelivered},
		{"all cancelled", []ItemStatus{ItemCancelled, ItemCancelled}, ItemCancelled},
		{"returned", []ItemStatus{ItemCancelled, ItemRTO}, ItemRTO},
		{"lost", []ItemStatus{ItemLost}, ItemLost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Order{}
			for _, s := range tc.items {
				o.Items = append(o.Items, OrderItem{Status: s})
			}
			o.RecomputeStatus()
			assert.Equal(t, tc.want, o.Status)
		})
	}
}

func TestCartOwner(t *testing.T) {
	assert.True(t, GuestOwner("abc").IsGuest())
	assert.True(t, GuestOwner("abc").Valid())
	assert.False(t, UserOwner("u1").IsGuest())
	assert.False(t, CartOwner("user:").Valid())
	assert.False(t, CartOwner("abc").Valid())
}
