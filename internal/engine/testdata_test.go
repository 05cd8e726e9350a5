package engine

import "savingsrate/internal/core"

func ptr(f float64) *float64 { return &f }

func testMapping() core.FieldMapping {
	return core.FieldMapping{
		PayDate:         "Date",
		SavingsDate:     "Date",
		GrossIncome:     "Gross Pay",
		EmployerMatch:   "Employer Match",
		TaxesAndFees:    []string{"Taxes"},
		SavingsAccounts: []string{"Account A", "Account B"},
		Notes:           "Notes",
	}
}

func incomeTable(rows ...core.Row) core.Table {
	return core.Table{Columns: []string{"Date", "Gross Pay", "Employer Match", "Taxes", "Notes"}, Rows: rows}
}

func savingsTable(rows ...core.Row) core.Table {
	return core.Table{Columns: []string{"Date", "Account A", "Account B", "Total", "Notes"}, Rows: rows}
}

func januaryInput() ProfileInput {
	return ProfileInput{
		Settings: core.ProfileSettings{ID: "1", Name: "Me", Self: true, War: true, Mapping: testMapping()},
		Income: incomeTable(core.Row{
			"Date": "2024-01-15", "Gross Pay": "5000", "Employer Match": "200", "Taxes": "800",
		}),
		Savings: savingsTable(core.Row{
			"Date": "2024-01-20", "Account A": "1000", "Account B": "200",
		}),
	}
}
