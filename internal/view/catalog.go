package view

var (
	BeginInterface = &Component{Name: "beginInterface", Template: "begin/begin_interface.html", Title: "票据系统", Group: GroupShared}

	BankInterface         = &Component{Name: "bankInterface", Template: "bank/bank_interface.html", Title: "银行界面", Group: GroupBank}
	CheckAllBills         = &Component{Name: "checkAllBills", Template: "bank/check_all_bills.html", Title: "查看所有票据", Group: GroupBank}
	IssueBills            = &Component{Name: "issueBills", Template: "bank/issue_bills.html", Title: "签发票据", Group: GroupBank}
	DealWaitDiscountBills = &Component{Name: "dealWaitDiscountBills", Template: "bank/deal_wait_discount_bills.html", Title: "处理待贴现票据", Group: GroupBank}
	QueryHistory          = &Component{Name: "queryHistory", Template: "bank/query_history.html", Title: "查询票据历史", Group: GroupBank}

	CompanyInterface         = &Component{Name: "companyInterface", Template: "company/company_interface.html", Title: "企业界面", Group: GroupCompany}
	DealWaitPayBills         = &Component{Name: "dealWaitPayBills", Template: "company/deal_wait_pay_bills.html", Title: "处理待支付票据", Group: GroupCompany}
	CheckAllWaitEndorseBills = &Component{Name: "checkAllWaitEndorseBills", Template: "company/check_all_wait_endorse_bills.html", Title: "待背书票据", Group: GroupCompany}
	CheckAllPayBills         = &Component{Name: "checkAllPayBills", Template: "company/check_all_pay_bills.html", Title: "待支付票据", Group: GroupCompany}
	CheckAllAcceptBills      = &Component{Name: "checkAllAcceptBills", Template: "company/check_all_accept_bills.html", Title: "待承兑票据", Group: GroupCompany}
	CheckAllHoldBills        = &Component{Name: "checkAllHoldBills", Template: "company/check_all_hold_bills.html", Title: "持有票据", Group: GroupCompany}
)

var catalog = []*Component{
	BeginInterface,
	BankInterface,
	CheckAllBills,
	IssueBills,
	DealWaitDiscountBills,
	QueryHistory,
	CompanyInterface,
	DealWaitPayBills,
	CheckAllWaitEndorseBills,
	CheckAllPayBills,
	CheckAllAcceptBills,
	CheckAllHoldBills,
}

// All returns every known component in declaration order.
func All() []*Component {
	out := make([]*Component, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the component with the given name.
func Lookup(name string) (*Component, bool) {
	for _, c := range catalog {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
