package route

import "github.com/simp-lee/billweb/internal/view"

// Table returns the navigation table of the bill UI in declaration order.
// Each call returns a fresh slice.
func Table() []Entry {
	return []Entry{
		{Path: "/queryHistory", Name: "queryHistory", Component: view.QueryHistory},

		{Path: "/beginInterface", Name: "beginInterface", Component: view.BeginInterface},
		{Path: "/bank/bankInterface", Name: "bankInterface", Component: view.BankInterface},
		{Path: "/bank/checkAllBills", Name: "checkAllBills", Component: view.CheckAllBills},
		{Path: "/bank/issueBills", Name: "issueBills", Component: view.IssueBills},
		{Path: "/bank/dealWaitDiscountBills", Name: "dealWaitDiscountBills", Component: view.DealWaitDiscountBills},

		{Path: "/company/companyInterface", Name: "companyInterface", Component: view.CompanyInterface},
		{Path: "/company/dealWaitPayBills", Name: "dealWaitPayBills", Component: view.DealWaitPayBills},
		{Path: "/company/checkAllWaitEndorseBills", Name: "checkAllWaitEndorseBills", Component: view.CheckAllWaitEndorseBills},
		{Path: "/company/checkAllPayBills", Name: "checkAllPayBills", Component: view.CheckAllPayBills},
		{Path: "/company/checkAllAcceptBills", Name: "checkAllAcceptBills", Component: view.CheckAllAcceptBills},
		{Path: "/company/checkAllHoldBills", Name: "checkAllHoldBills", Component: view.CheckAllHoldBills},
	}
}

// Build validates Table and returns its registry.
func Build() (*Registry, error) {
	return New(Table())
}
