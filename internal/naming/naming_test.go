package naming

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"customers", "Customer"},
		{"order_items", "OrderItem"},
		{"OrderDetails", "OrderDetail"},
		{"people", "Person"},
		{"status", "Status"},
		{"ORDER_LINES", "OrderLine"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.EntityName(tt.input, ""))
		})
	}
}

func TestEntityNamePolicies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TablePrefix = "tbl_"

	cfg.EntityNaming = EntityPlural
	assert.Equal(t, "Customers", New(cfg, nil).EntityName("TBL_customer", ""))

	cfg.EntityNaming = EntityPreserve
	assert.Equal(t, "order_items", New(cfg, nil).EntityName("tbl_order_items", ""))
	assert.Equal(t, "Order_Details", New(cfg, nil).EntityName("[Order Details]", ""))
}

func TestEntityNameAliasAndKeywordAlias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeywordAliases = map[string]string{"Type": "Kind"}
	namer := New(cfg, nil)

	assert.Equal(t, "my_alias", namer.EntityName("customers", "my_alias"))
	assert.Equal(t, "Kind", namer.EntityName("type", ""))
	assert.Equal(t, "Kind", namer.PropertyName("TYPE", "", "Order"))
}

func TestPropertyName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "UserName"},
		{"created_at", "CreatedAt"},
		{"id", "Id"},
		{"CustomerID", "CustomerID"},
		{"api_v2_key", "ApiV2Key"},
		{"a_b_c_myName", "ABCMyName"},
		{"123Foo", "Foo"},
		{"123", "Member123"},
		{".", "Period"},
		{"'", "Apostrophe"},
		{"_", "Underscore"},
		{"~", "Member"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.PropertyName(tt.input, "", ""))
		})
	}
}

func TestPropertyNameIsIdempotent(t *testing.T) {
	namer := Default()

	inputs := []string{"order_id", "ORDER_ID", "CustomerID", "123", "123Foo", "URLPath", "a_b_c_myName", "first name", "type"}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			once := namer.ResolveName(input, KindProperty, "")
			assert.Equal(t, once, namer.ResolveName(once, KindProperty, ""))
		})
	}

	for _, input := range []string{"customers", "order_items", "StudentCourses", "ADDRESSES"} {
		t.Run("entity "+input, func(t *testing.T) {
			once := namer.ResolveName(input, KindEntity, "")
			assert.Equal(t, once, namer.ResolveName(once, KindEntity, ""))
		})
	}
}

func TestPropertyNameCollidesWithEntity(t *testing.T) {
	namer := Default()
	assert.Equal(t, "OrderMember", namer.PropertyName("order", "", "Order"))
	assert.Equal(t, "Total", namer.PropertyName("total", "", "Order"))
}

func TestPropertyNameRemovePrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PropertyNaming = PropertyNormalizeRemovePrefix
	namer := New(cfg, nil)

	assert.Equal(t, "Name", namer.PropertyName("CategoryName", "", "Category"))
	// stripping must leave at least two characters
	assert.Equal(t, "CategoryX", namer.PropertyName("CategoryX", "", "Category"))
}

func TestCleanExpressions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CleanExpressions = []*regexp.Regexp{regexp.MustCompile(`^col_`), regexp.MustCompile(`_fld$`)}
	namer := New(cfg, nil)

	assert.Equal(t, "Amount", namer.PropertyName("col_amount", "", ""))
	assert.Equal(t, "Total", namer.PropertyName("total_fld", "", ""))
}

func TestAssociationName(t *testing.T) {
	tests := []struct {
		policy   AssociationNaming
		toMany   bool
		expected string
	}{
		{AssociationPlural, true, "Orders"},
		{AssociationPlural, false, "Order"},
		{AssociationSingular, true, "Order"},
		{AssociationList, true, "OrderList"},
		{AssociationSingularList, true, "OrderList"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AssociationNaming = tt.policy
			assert.Equal(t, tt.expected, New(cfg, nil).AssociationName("Order", tt.toMany))
		})
	}

	cfg := DefaultConfig()
	cfg.AssociationNaming = AssociationSingularList
	assert.Equal(t, "OrderList", New(cfg, nil).AssociationName("Orders", true))
}

func TestAssociationNameIsIdempotent(t *testing.T) {
	for _, policy := range []AssociationNaming{AssociationPlural, AssociationSingular, AssociationList, AssociationSingularList} {
		t.Run(string(policy), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AssociationNaming = policy
			namer := New(cfg, nil)
			for _, raw := range []string{"order", "order_items", "Categories"} {
				once := namer.ResolveName(raw, KindAssociation, "")
				assert.Equal(t, once, namer.ResolveName(once, KindAssociation, ""), raw)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.AssociationNaming = AssociationList
	assert.Equal(t, "OrderList", New(cfg, nil).ResolveName("OrderList", KindAssociation, ""))
}

func TestMemberSuffix(t *testing.T) {
	namer := Default()
	assert.Equal(t, "Member", namer.MemberSuffix(false))
	assert.Equal(t, "Members", namer.MemberSuffix(true))
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluralOverrides = map[string]string{"staff": "staff", "cactus": "cacti"}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "Cacti", namer.Pluralize("Cactus"))
	assert.Equal(t, "users", namer.Pluralize("user"))
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingularOverrides = map[string]string{"data": "datum"}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "Datum", namer.EntityName("data", ""))
}

func TestVariableNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "orderLine", namer.VariableName("OrderLine", false))
	assert.Equal(t, "customerID", namer.VariableName("CustomerID", false))
	assert.Equal(t, "urlPath", namer.VariableName("URLPath", false))
	assert.Equal(t, "_orderLine", namer.PrivateMemberVariableName("OrderLine", false))
	assert.Equal(t, "Order_Line", namer.VariableName("[Order Line]", true))
	assert.Equal(t, "", namer.VariableName("  ", false))
}

func TestReservedWordSuffixing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.Equal(t, "type_", namer.VariableName("Type", false))
	assert.Equal(t, "range_", namer.VariableName("range", false))
	assert.Contains(t, buf.String(), "reserved word")
	assert.Equal(t, "Type", namer.PropertyName("type", "", ""))
}

func TestRemoveID(t *testing.T) {
	tests := map[string]string{
		"CustomerId":  "Customer",
		"customer_ID": "customer",
		"Order.Id":    "Order",
		"ParentID":    "Parent",
		"Id":          "Id",
		"Identity":    "Identity",
	}
	for input, expected := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, RemoveID(input))
		})
	}
}

func TestSafeNameAndParameters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafeNamePrefix = "`"
	cfg.SafeNameSuffix = "`"
	namer := New(cfg, nil)

	assert.Equal(t, "`shop`.`orders`", namer.SafeName("shop", "orders"))
	assert.Equal(t, "`orders`", namer.SafeName("", "orders"))
	assert.Equal(t, "@p_OrderId", namer.ParameterName("@OrderId"))
}

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "Order Line", FriendlyName("OrderLine"))
	assert.Equal(t, "Customer ID", FriendlyName("CustomerID"))
	assert.Equal(t, "Order Line", FriendlyName("order_line"))
}

func TestCollisionResolver(t *testing.T) {
	var buf bytes.Buffer
	resolver := NewCollisionResolver(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, "Status", resolver.Register("consts", "Status", "enum:a"))
	assert.Equal(t, "Status2", resolver.Register("consts", "Status", "enum:b"))
	assert.Equal(t, "Status3", resolver.Register("consts", "Status", "enum:c"))
	assert.Equal(t, "Status", resolver.Register("types", "Status", "table:status"))

	owner, ok := resolver.Owner("consts", "Status2")
	assert.True(t, ok)
	assert.Equal(t, "enum:b", owner)
	_, ok = resolver.Owner("other", "Status")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "identifier already taken")
}

func TestCollisionResolverSkipsTakenSuffix(t *testing.T) {
	resolver := NewCollisionResolver(nil)
	require.Equal(t, "Order2", resolver.Register("types", "Order2", "table:order2"))
	require.Equal(t, "Order", resolver.Register("types", "Order", "table:order"))
	assert.Equal(t, "Order3", resolver.Register("types", "Order", "key:order"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.EntityNaming = "camel"
	assert.Error(t, cfg.Validate())
}
