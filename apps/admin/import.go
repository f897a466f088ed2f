package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/fee"
)

type (
	importClassFee struct {
		Class  int     `json:"class"`
		Amount float64 `json:"amount" validate:"min=0"`
	}

	importEducationDetail struct {
		EducationType  string           `json:"education_type" validate:"required"`
		Medium         string           `json:"medium" validate:"required"`
		EducationLevel string           `json:"education_level" validate:"required"`
		Fees           []importClassFee `json:"fees" validate:"required,min=1,dive"`
	}

	importStudent struct {
		Name         string `json:"name" validate:"required"`
		ParentName   string `json:"parent_name"`
		AcademicYear string `json:"academic_year" validate:"omitempty,academicyear"`
		CurrentClass int    `json:"current_class"`
		EntryClass   int    `json:"entry_class"`
		Medium       string `json:"medium" validate:"required"`
		Gender       string `json:"gender" validate:"required,oneof=boy girl transgender"`
	}

	importSchool struct {
		UDISECode        string                  `json:"udise_code" validate:"required,numeric"`
		AcademicYear     string                  `json:"academic_year" validate:"required,academicyear"`
		Name             string                  `json:"name" validate:"required"`
		BoardType        string                  `json:"board_type" validate:"required"`
		Email            string                  `json:"email" validate:"omitempty,email"`
		EducationDetails []importEducationDetail `json:"education_details" validate:"required,min=1,dive"`
		Students         []importStudent         `json:"students" validate:"dive"`
	}

	importStateFee struct {
		AcademicYear   string             `json:"academic_year" validate:"required,academicyear"`
		PaymentHead    string             `json:"payment_head" validate:"required,paymenthead"`
		BoardType      string             `json:"board_type" validate:"required"`
		EducationLevel string             `json:"education_level" validate:"required"`
		TuitionFee     float64            `json:"tuition_fee" validate:"min=0"`
		AdditionalFees map[string]float64 `json:"additional_fees" validate:"dive,keys,required,alphanum_,endkeys,min=0"`
	}

	// importData is the layout of the files accepted by the import command.
	// The whole file is validated before anything is written.
	importData struct {
		Schools   []importSchool   `json:"schools" validate:"dive"`
		StateFees []importStateFee `json:"state_fees" validate:"dive"`
	}
)

func (cli *commandLine) importFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer f.Close()

	var data importData
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&data); err != nil {
		return errors.Wrap(err, "decoding import file")
	}
	if err = cli.validateImport(data); err != nil {
		return err
	}
	return cli.importData(context.Background(), data)
}

// validateImport applies the struct rules, then checks classes and education types against the school settings.
func (cli *commandLine) validateImport(data importData) error {
	if err := cli.validate.Struct(data); err != nil {
		return err
	}
	for i, is := range data.Schools {
		for j, ed := range is.EducationDetails {
			if !core.ContainsString(cli.school.EducationTypes, ed.EducationType) {
				return core.NewFieldError(
					fmt.Sprintf("schools[%d].education_details[%d].education_type", i, j),
					fmt.Errorf("unknown education type %q", ed.EducationType),
				)
			}
			for k, cf := range ed.Fees {
				if err := cli.checkClass(fmt.Sprintf("schools[%d].education_details[%d].fees[%d].class", i, j, k), cf.Class); err != nil {
					return err
				}
			}
		}
		for j, st := range is.Students {
			field := fmt.Sprintf("schools[%d].students[%d]", i, j)
			if err := cli.checkClass(field+".current_class", st.CurrentClass); err != nil {
				return err
			}
			if err := cli.checkClass(field+".entry_class", st.EntryClass); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cli *commandLine) checkClass(field string, class int) error {
	if _, ok := cli.school.ClassLabel(class); !ok {
		return core.NewFieldError(field, fmt.Errorf("unknown class %d", class))
	}
	return nil
}

// importData writes schools with their students, then state fees. Records written before a storage
// failure are kept; rerunning the file then fails on the first school already imported.
func (cli *commandLine) importData(ctx context.Context, data importData) error {
	var nStudents int
	for _, is := range data.Schools {
		school := fee.School{
			ID:           uuid.New().String(),
			UDISECode:    is.UDISECode,
			AcademicYear: is.AcademicYear,
			Name:         is.Name,
			BoardType:    is.BoardType,
			Email:        is.Email,
		}
		for _, ed := range is.EducationDetails {
			detail := fee.EducationDetail{EducationType: ed.EducationType, Medium: ed.Medium, EducationLevel: ed.EducationLevel}
			for _, cf := range ed.Fees {
				detail.Fees = append(detail.Fees, fee.ClassFee{Class: cf.Class, Amount: cf.Amount})
			}
			school.EducationDetails = append(school.EducationDetails, detail)
		}
		school, err := cli.schoolRepo.CreateSchool(ctx, school)
		if err != nil {
			return errors.Wrapf(err, "importing school %s (%s)", is.UDISECode, is.AcademicYear)
		}

		for _, st := range is.Students {
			student := fee.Student{
				ID:           uuid.New().String(),
				SchoolID:     school.ID,
				AcademicYear: st.AcademicYear,
				Name:         st.Name,
				ParentName:   st.ParentName,
				CurrentClass: st.CurrentClass,
				EntryClass:   st.EntryClass,
				Medium:       st.Medium,
				Gender:       st.Gender,
			}
			if student.AcademicYear == "" {
				student.AcademicYear = school.AcademicYear
			}
			if _, err = cli.schoolRepo.CreateStudent(ctx, student); err != nil {
				return errors.Wrapf(err, "importing student %q of school %s", student.Name, school.UDISECode)
			}
			nStudents++
		}
	}

	for _, sf := range data.StateFees {
		_, err := cli.schoolRepo.CreateStateFee(ctx, fee.StateFee{
			ID:             uuid.New().String(),
			AcademicYear:   sf.AcademicYear,
			PaymentHead:    sf.PaymentHead,
			BoardType:      sf.BoardType,
			EducationLevel: sf.EducationLevel,
			TuitionFee:     sf.TuitionFee,
			AdditionalFees: sf.AdditionalFees,
		})
		if err != nil {
			return errors.Wrapf(err, "importing %s state fee for %s", sf.PaymentHead, sf.EducationLevel)
		}
	}

	cli.logger.Info(fmt.Sprintf("imported %d schools, %d students and %d state fees", len(data.Schools), nStudents, len(data.StateFees)))
	return nil
}
