package iam

// DefaultMatrix returns the built-in permission matrix of the platform. It is
// the compiled-in source of truth; a deployment may replace it wholesale via
// ApplyConfig, never edit it at runtime.
//
// Shape of the table, per role:
//
//   - superadmin: every action on every resource, tenant-exempt.
//   - college_admin: full control of academic structure (classes, students,
//     teachers, departments, subjects) inside the tenant; read-only over
//     learning artifacts and import logs; manages follow-up scheduling but
//     does not author sessions.
//   - teacher: read/update limited to assigned classes, own profile, headed
//     departments and handled subjects; authors activity sheets, validations
//     and follow-up sessions for assigned classes; records imports.
//   - student: read-only over academic structure, read/update of the own
//     record's contact fields, authors own activity sheets.
func DefaultMatrix() *Matrix {
	b := NewMatrixBuilder().Version(1)

	all := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionList}
	rl := []Action{ActionRead, ActionList}

	for _, rt := range ResourceTypes() {
		b.Grant(RoleSuperAdmin, rt).Actions(all...).Done()
	}

	// college_admin
	for _, rt := range []ResourceType{ResourceClass, ResourceStudent, ResourceTeacher, ResourceDepartment, ResourceSubject} {
		b.Grant(RoleCollegeAdmin, rt).Actions(all...).Done()
	}
	b.Grant(RoleCollegeAdmin, ResourceImportLog).Actions(rl...).Done()
	b.Grant(RoleCollegeAdmin, ResourceActivitySheet).Actions(rl...).Done()
	b.Grant(RoleCollegeAdmin, ResourceValidation).Actions(rl...).Done()
	b.Grant(RoleCollegeAdmin, ResourceFollowUpSession).Actions(ActionRead, ActionUpdate, ActionDelete, ActionList).Done()

	// teacher
	b.Grant(RoleTeacher, ResourceClass).Actions(rl...).Done()
	b.Grant(RoleTeacher, ResourceStudent).Actions(ActionRead, ActionUpdate).When(PredicateOwnClass).Done()
	b.Grant(RoleTeacher, ResourceStudent).Actions(ActionList).Done()
	b.Grant(RoleTeacher, ResourceTeacher).Actions(rl...).Done()
	b.Grant(RoleTeacher, ResourceTeacher).Actions(ActionUpdate).When(PredicateOwnRecord).Done()
	b.Grant(RoleTeacher, ResourceDepartment).Actions(rl...).Done()
	b.Grant(RoleTeacher, ResourceDepartment).Actions(ActionUpdate).When(PredicateIsHOD).Done()
	b.Grant(RoleTeacher, ResourceSubject).Actions(rl...).Done()
	b.Grant(RoleTeacher, ResourceSubject).Actions(ActionUpdate).When(PredicateOwnRecord).Done()
	b.Grant(RoleTeacher, ResourceImportLog).Actions(ActionCreate, ActionList).Done()
	b.Grant(RoleTeacher, ResourceImportLog).Actions(ActionRead).When(PredicateOwnRecord).Done()
	b.Grant(RoleTeacher, ResourceActivitySheet).Actions(ActionCreate, ActionList).Done()
	b.Grant(RoleTeacher, ResourceActivitySheet).Actions(ActionRead, ActionUpdate).When(PredicateOwnClass).Done()
	b.Grant(RoleTeacher, ResourceValidation).Actions(ActionCreate, ActionList).Done()
	b.Grant(RoleTeacher, ResourceValidation).Actions(ActionRead, ActionUpdate).When(PredicateOwnClass).Done()
	b.Grant(RoleTeacher, ResourceFollowUpSession).Actions(ActionCreate, ActionList).Done()
	b.Grant(RoleTeacher, ResourceFollowUpSession).Actions(ActionRead, ActionUpdate, ActionDelete).When(PredicateOwnClass).Done()

	// student
	b.Grant(RoleStudent, ResourceClass).Actions(rl...).Done()
	b.Grant(RoleStudent, ResourceStudent).Actions(ActionList).Done()
	b.Grant(RoleStudent, ResourceStudent).Actions(ActionRead, ActionUpdate).When(PredicateOwnRecord).Done()
	b.Grant(RoleStudent, ResourceTeacher).Actions(rl...).Done()
	b.Grant(RoleStudent, ResourceDepartment).Actions(rl...).Done()
	b.Grant(RoleStudent, ResourceSubject).Actions(rl...).Done()
	b.Grant(RoleStudent, ResourceActivitySheet).Actions(ActionCreate, ActionList).Done()
	b.Grant(RoleStudent, ResourceActivitySheet).Actions(ActionRead, ActionUpdate).When(PredicateOwnRecord).Done()
	b.Grant(RoleStudent, ResourceValidation).Actions(ActionList).Done()
	b.Grant(RoleStudent, ResourceValidation).Actions(ActionRead).When(PredicateOwnRecord).Done()
	b.Grant(RoleStudent, ResourceFollowUpSession).Actions(ActionList).Done()
	b.Grant(RoleStudent, ResourceFollowUpSession).Actions(ActionRead).When(PredicateOwnRecord).Done()

	// Field allow-lists, update mode. Admin roles get every mutable field;
	// narrower roles get their documented subsets. class_ref and
	// academic_year stay out of every student update set: placements change
	// through the enrollment workflow, not a profile write.
	for _, rt := range ResourceTypes() {
		b.UpdateFields(RoleSuperAdmin, rt, MutableFields(rt).Names()...)
	}
	b.UpdateFields(RoleCollegeAdmin, ResourceClass, "name", "is_active")
	b.UpdateFields(RoleCollegeAdmin, ResourceStudent,
		"first_name", "last_name", "email", "phone_number", "status", "department")
	b.UpdateFields(RoleCollegeAdmin, ResourceTeacher,
		"first_name", "last_name", "email", "phone_number", "status", "department")
	b.UpdateFields(RoleCollegeAdmin, ResourceDepartment, "name", "description")
	b.UpdateFields(RoleCollegeAdmin, ResourceSubject,
		"name", "description", "syllabus", "department", "handling_teacher")
	b.UpdateFields(RoleCollegeAdmin, ResourceFollowUpSession,
		"teacher_ref", "session_datetime", "location", "objective", "status")

	b.UpdateFields(RoleTeacher, ResourceStudent, "first_name", "last_name", "email", "phone_number")
	b.UpdateFields(RoleTeacher, ResourceTeacher, "first_name", "last_name", "email", "phone_number")
	b.UpdateFields(RoleTeacher, ResourceDepartment, "description")
	b.UpdateFields(RoleTeacher, ResourceSubject, "description", "syllabus")
	b.UpdateFields(RoleTeacher, ResourceActivitySheet,
		"title", "context", "objectives", "methodology", "status", "final_grade")
	b.UpdateFields(RoleTeacher, ResourceValidation,
		"has_subject", "context_well_formulated", "objectives_validated",
		"methodology_respected", "session_grade", "comments")
	b.UpdateFields(RoleTeacher, ResourceFollowUpSession,
		"teacher_ref", "session_datetime", "location", "objective", "status")

	b.UpdateFields(RoleStudent, ResourceStudent, "first_name", "last_name", "email", "phone_number")
	b.UpdateFields(RoleStudent, ResourceActivitySheet,
		"title", "context", "objectives", "methodology", "status")

	// Field allow-lists, create mode. Supersets of the update sets: creation
	// additionally fixes references that are frozen afterwards. The tenant
	// reference never appears; it always comes from the creator's context.
	for _, rt := range ResourceTypes() {
		fields := CreatableFields(rt)
		delete(fields, "college")
		b.CreateFields(RoleSuperAdmin, rt, fields.Names()...)
	}
	b.CreateFields(RoleCollegeAdmin, ResourceClass, "name", "is_active", "academic_year")
	b.CreateFields(RoleCollegeAdmin, ResourceStudent,
		"first_name", "last_name", "email", "phone_number", "status", "department",
		"class_ref", "academic_year", "student_number")
	b.CreateFields(RoleCollegeAdmin, ResourceTeacher,
		"first_name", "last_name", "email", "phone_number", "status", "department", "employee_id")
	b.CreateFields(RoleCollegeAdmin, ResourceDepartment, "name", "description")
	b.CreateFields(RoleCollegeAdmin, ResourceSubject,
		"name", "description", "syllabus", "department", "handling_teacher")

	b.CreateFields(RoleTeacher, ResourceImportLog, "class_ref", "filename")
	b.CreateFields(RoleTeacher, ResourceActivitySheet,
		"student_ref", "sheet_type", "sheet_number", "academic_year",
		"title", "context", "objectives", "methodology", "status", "final_grade")
	b.CreateFields(RoleTeacher, ResourceValidation,
		"session_ref", "has_subject", "context_well_formulated", "objectives_validated",
		"methodology_respected", "session_grade", "comments")
	b.CreateFields(RoleTeacher, ResourceFollowUpSession,
		"student_ref", "academic_year", "teacher_ref", "session_datetime",
		"location", "objective", "status")

	b.CreateFields(RoleStudent, ResourceActivitySheet,
		"student_ref", "sheet_type", "sheet_number", "academic_year",
		"title", "context", "objectives", "methodology", "status")

	return b.Build()
}
